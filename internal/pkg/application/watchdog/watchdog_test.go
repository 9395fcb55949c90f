package watchdog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestThatJobsRunUntilStopped(t *testing.T) {
	is := is.New(t)

	var ok, failing int32

	w := New(zerolog.Nop(),
		Job{Name: "ok", Interval: 10 * time.Millisecond, Run: func(ctx context.Context) error {
			atomic.AddInt32(&ok, 1)
			return nil
		}},
		Job{Name: "failing", Interval: 10 * time.Millisecond, Run: func(ctx context.Context) error {
			atomic.AddInt32(&failing, 1)
			return errors.New("boom")
		}},
	)

	w.Start()
	time.Sleep(100 * time.Millisecond)
	w.Stop()

	stopped := atomic.LoadInt32(&ok)
	is.True(stopped > 1)
	is.True(atomic.LoadInt32(&failing) > 1)

	time.Sleep(30 * time.Millisecond)
	is.Equal(atomic.LoadInt32(&ok), stopped)

	w.Stop()
}
