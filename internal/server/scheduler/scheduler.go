// Package scheduler runs the coordinator's periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/robfig/cron"
)

// Job does one pass of work and reports how many items it handled.
type Job func(ctx context.Context) (int, error)

type entry struct {
	name    string
	job     Job
	timeout time.Duration
	busy    atomic.Bool
}

// Scheduler runs jobs on cron schedules. A job never overlaps with itself:
// a tick that finds the previous run still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(logger logging.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		logger: logger.With("module", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// DefaultTimeout bounds a run when no timeout is given.
const DefaultTimeout = time.Minute

// Schedule adds job under a cron spec such as "@every 5m" or "0 */10 * * * *".
func (s *Scheduler) Schedule(name, spec string, timeout time.Duration, job Job) error {
	if _, err := cron.Parse(spec); err != nil {
		return fmt.Errorf("job %s: schedule %q: %w", name, spec, err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	e := &entry{name: name, job: job, timeout: timeout}
	return s.cron.AddFunc(spec, func() { s.run(e) })
}

func (s *Scheduler) run(e *entry) {
	if !e.busy.CompareAndSwap(false, true) {
		s.logger.Debug(s.ctx, "previous run still going, tick skipped", "job", e.name)
		return
	}
	defer e.busy.Store(false)

	s.wg.Add(1)
	defer s.wg.Done()

	if s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, e.timeout)
	defer cancel()

	start := time.Now()
	n, err := e.job(ctx)
	if err != nil {
		s.logger.Error(ctx, "job failed", "job", e.name, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info(ctx, "job done", "job", e.name, "items", n, "took", time.Since(start))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule, cancels running jobs and waits for them to
// return.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.cancel()
	s.wg.Wait()
}
