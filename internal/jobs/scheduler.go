package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "gameweek/internal/log"
)

// Task is one unit of maintenance work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs every task in order on a cron spec. Runs never overlap:
// a tick or RunOnce call that arrives while another pass is busy is
// skipped.
type Scheduler struct {
	cron    *cron.Cron
	tasks   []Task
	ctx     context.Context
	running sync.Mutex
}

// NewScheduler validates spec (standard 5-field cron) and prepares the
// scheduler. Call Start to begin ticking.
func NewScheduler(ctx context.Context, spec string, loc *time.Location, tasks ...Task) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		tasks: tasks,
		ctx:   ctx,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(s.ctx) }); err != nil {
		return nil, fmt.Errorf("maintenance schedule %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce executes all tasks immediately and reports whether it ran. It
// returns false without doing anything when another pass is in progress.
// Task failures are logged and do not stop later tasks.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.running.TryLock() {
		appLog.Debug("maintenance pass skipped, previous pass still running")
		return false
	}
	defer s.running.Unlock()

	for _, t := range s.tasks {
		if ctx.Err() != nil {
			return true
		}
		start := time.Now()
		if err := t.Run(ctx); err != nil {
			appLog.Error("maintenance task failed", err, "task", t.Name)
			continue
		}
		appLog.Debug("maintenance task done", "task", t.Name, "took", time.Since(start).String())
	}
	return true
}

func (s *Scheduler) Start() {
	appLog.Info("maintenance scheduler started", "tasks", len(s.tasks))
	s.cron.Start()
}

// Stop stops the ticker and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// PruneSessionsTask wraps a session pruner.
func PruneSessionsTask(prune func() (int, error)) Task {
	return Task{
		Name: "prune-sessions",
		Run: func(context.Context) error {
			n, err := prune()
			if err != nil {
				return err
			}
			if n > 0 {
				appLog.Info("expired sessions pruned", "count", n)
			}
			return nil
		},
	}
}

// ImportFeedsTask imports every configured feed.
func ImportFeedsTask(im *Importer) Task {
	return Task{
		Name: "import-feeds",
		Run: func(ctx context.Context) error {
			_, err := im.ImportAll(ctx)
			return err
		},
	}
}
