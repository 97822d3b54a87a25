package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingExpirer struct {
	calls atomic.Int64
	err   error
}

func (e *countingExpirer) ExpirePending(_ context.Context) (int64, error) {
	e.calls.Add(1)
	return 0, e.err
}

func TestRun_SweepsImmediatelyAndOnTick(t *testing.T) {
	expirer := &countingExpirer{}
	logger := zerolog.Nop()
	s := New(expirer, 10*time.Millisecond, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return expirer.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}

func TestRun_KeepsGoingAfterErrors(t *testing.T) {
	expirer := &countingExpirer{err: errors.New("db locked")}
	logger := zerolog.Nop()
	s := New(expirer, 10*time.Millisecond, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	assert.Eventually(t, func() bool {
		return expirer.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestNew_DefaultsInterval(t *testing.T) {
	logger := zerolog.Nop()
	s := New(&countingExpirer{}, 0, &logger)
	assert.Equal(t, time.Minute, s.interval)
}
