// Package availability reports hour-by-hour slot status for a day and
// answers advisory conflict checks before a booking attempt.
package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Slot statuses reported per hour.
const (
	StatusAvailable = "available"
	StatusPast      = "past"
)

// HoldSource returns the held hours of a day mapped to the holding
// booking's status.
type HoldSource interface {
	DayHolds(ctx context.Context, date time.Time) (map[int]string, error)
}

// HourAvailability is the status of one hour of a day.
type HourAvailability struct {
	Hour   int    `json:"hour"`
	Status string `json:"status"`
}

// DayAvailability is a whole day's slot grid.
type DayAvailability struct {
	Date  string             `json:"date"`
	Hours []HourAvailability `json:"hours"`
}

// Checker computes availability with optional Redis caching.
type Checker struct {
	source   HoldSource
	logger   *zerolog.Logger
	redis    *redis.Client
	cacheTTL time.Duration
	now      func() time.Time
}

// NewChecker constructs a checker over the given hold source.
func NewChecker(source HoldSource, logger *zerolog.Logger) *Checker {
	return &Checker{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// UseRedisCache configures optional Redis caching of day grids.
func (c *Checker) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// WithClock overrides the checker clock, for tests.
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}

// GetAvailability returns all 24 hour slots of the date. Hours held by
// a non-terminal or completed booking carry that booking's status;
// hours already elapsed today are reported as past.
func (c *Checker) GetAvailability(ctx context.Context, date time.Time) (*DayAvailability, error) {
	day := dateOnly(date)
	cacheKey := cacheKey(day)

	var cached DayAvailability
	if c.readCache(ctx, cacheKey, &cached) {
		c.markPast(&cached, day)
		return &cached, nil
	}

	holds, err := c.source.DayHolds(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load day holds: %w", err)
	}

	out := &DayAvailability{
		Date:  day.Format("2006-01-02"),
		Hours: make([]HourAvailability, 24),
	}
	for h := 0; h < 24; h++ {
		status := StatusAvailable
		if held, ok := holds[h]; ok {
			status = held
		}
		out.Hours[h] = HourAvailability{Hour: h, Status: status}
	}

	c.writeCache(ctx, cacheKey, out)
	c.markPast(out, day)
	return out, nil
}

// CheckConflict reports which of the requested hours are currently
// held. The answer is advisory: the booking transaction re-checks under
// lock, so the source is queried directly rather than through the cache.
func (c *Checker) CheckConflict(ctx context.Context, date time.Time, hours []int) ([]int, error) {
	holds, err := c.source.DayHolds(ctx, dateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("load day holds: %w", err)
	}
	var taken []int
	for _, h := range hours {
		if _, ok := holds[h]; ok {
			taken = append(taken, h)
		}
	}
	return taken, nil
}

// Invalidate drops the cached grid for the date. Wired to the booking
// lifecycle events so mutations are visible immediately.
func (c *Checker) Invalidate(ctx context.Context, date time.Time) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, cacheKey(dateOnly(date))).Err(); err != nil {
		c.logger.Warn().Err(err).Str("date", date.Format("2006-01-02")).Msg("failed to invalidate availability cache")
	}
}

// InvalidateFromEvent parses a lifecycle event payload carrying a date
// field and invalidates that day. Suitable as an event bus handler.
func (c *Checker) InvalidateFromEvent(payload []byte) error {
	var body struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("decode event payload: %w", err)
	}
	date, err := time.Parse("2006-01-02", body.Date)
	if err != nil {
		return fmt.Errorf("parse event date: %w", err)
	}
	c.Invalidate(context.Background(), date)
	return nil
}

// markPast overrides available hours that have already elapsed. Applied
// after the cache so a grid cached in the morning stays correct all day.
func (c *Checker) markPast(day *DayAvailability, date time.Time) {
	now := c.now().UTC()
	today := dateOnly(now)
	if date.After(today) {
		return
	}
	for i := range day.Hours {
		h := &day.Hours[i]
		if h.Status != StatusAvailable {
			continue
		}
		if date.Before(today) || h.Hour < now.Hour() {
			h.Status = StatusPast
		}
	}
}

func (c *Checker) readCache(ctx context.Context, key string, out *DayAvailability) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Checker) writeCache(ctx context.Context, key string, val *DayAvailability) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func cacheKey(day time.Time) string {
	return "availability:" + day.Format("2006-01-02")
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
