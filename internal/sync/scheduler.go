package sync

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs a pass every fifteen minutes.
const DefaultSchedule = "@every 15m"

// Scheduler queues passes on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
	spec   string
	log    *zap.Logger
}

// NewScheduler parses spec (standard five-field cron or a descriptor such
// as "@every 15m") and binds it to engine.
func NewScheduler(engine *Engine, spec string, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		engine: engine,
		spec:   spec,
		log:    log,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("parsing sync schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the schedule in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("sync scheduled", zap.String("schedule", s.spec))
}

// Stop halts the schedule and waits for a running tick to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// tick waits for its pass so overlapping ticks are skipped rather than
// piling up in the queue.
func (s *Scheduler) tick() {
	res := <-s.engine.PerformSync(context.Background())
	s.log.Debug("scheduled sync finished", zap.String("status", string(res.Status)))
}
