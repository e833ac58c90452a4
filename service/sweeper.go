package service

import (
	"context"
	"sync"

	"github.com/go-foreman/commandcenter/log"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Sweeper re-evaluates deadlines of active sagas.
type Sweeper interface {
	SweepDeadlines(ctx context.Context) (int, error)
}

// DeadlineSweeper runs a Sweeper on a cron schedule, so expired commands are compensated without waiting for another event.
type DeadlineSweeper struct {
	sweeper  Sweeper
	schedule cron.Schedule
	cron     *cron.Cron
	logger   log.Logger

	mutex   sync.Mutex
	started bool
	stopped bool
}

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewDeadlineSweeper parses spec, a standard cron expression with optional seconds or a descriptor such as "@every 30s".
func NewDeadlineSweeper(sweeper Sweeper, spec string, logger log.Logger) (*DeadlineSweeper, error) {
	schedule, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing sweep schedule %q", spec)
	}

	return &DeadlineSweeper{
		sweeper:  sweeper,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(scheduleParser)),
		logger:   logger,
	}, nil
}

// Start schedules the sweep. Jobs stop doing anything once ctx is done. A sweeper is started at most once.
func (s *DeadlineSweeper) Start(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.started {
		return
	}
	s.started = true

	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}

		if _, err := s.Run(ctx); err != nil {
			s.logger.Logf(log.ErrorLevel, "sweeping deadlines: %s", err)
		}
	}))

	s.cron.Start()
	s.logger.Logf(log.InfoLevel, "deadline sweeper started")
}

// Stop unschedules the sweep and waits for a running one to finish.
func (s *DeadlineSweeper) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.started || s.stopped {
		return
	}
	s.stopped = true

	<-s.cron.Stop().Done()
	s.logger.Logf(log.InfoLevel, "deadline sweeper stopped")
}

// Run sweeps once.
func (s *DeadlineSweeper) Run(ctx context.Context) (int, error) {
	retired, err := s.sweeper.SweepDeadlines(ctx)
	if retired > 0 {
		s.logger.Logf(log.InfoLevel, "deadline sweep retired %d sagas", retired)
	}

	return retired, err
}
