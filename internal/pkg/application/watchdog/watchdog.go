package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/rs/zerolog"
)

// Job is a background task run by the watchdog every Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Watchdog interface {
	Start()
	Stop()
}

type watchdogImpl struct {
	jobs []Job
	log  zerolog.Logger
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func New(log zerolog.Logger, jobs ...Job) Watchdog {
	return &watchdogImpl{
		jobs: jobs,
		log:  log,
		done: make(chan struct{}),
	}
}

func (w *watchdogImpl) Start() {
	for _, j := range w.jobs {
		w.wg.Add(1)
		go w.backgroundWorker(j)
	}
}

func (w *watchdogImpl) Stop() {
	w.once.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}

func (w *watchdogImpl) backgroundWorker(j Job) {
	defer w.wg.Done()

	log := w.log.With().Str("job", j.Name).Logger()
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.run(j, log)
		}
	}
}

func (w *watchdogImpl) run(j Job, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), j.Interval)
	defer cancel()

	ctx = logging.NewContextWithLogger(ctx, log)

	start := time.Now()
	err := j.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("job failed")
		return
	}

	log.Debug().Msgf("job done in %s", time.Since(start))
}
