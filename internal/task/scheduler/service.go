package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"rankbot/internal/refresh"
	logx "rankbot/pkg/logx"
)

// Period separates scheduled runs once the first one has fired.
const Period = 24 * time.Hour

// Runner executes one refresh.
type Runner interface {
	Run(ctx context.Context) (refresh.Outcome, error)
}

// Trigger names what started a run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// LastRun records the most recent finished run.
type LastRun struct {
	Trigger  Trigger
	Finished time.Time
	Outcome  refresh.Outcome
	Err      error
}

// Status is a point-in-time view for operators.
type Status struct {
	Schedule string
	Next     time.Time // zero until Run has armed the timer
	Running  int
	Last     *LastRun
}

// Service fires the runner at the daily target, then every Period. Manual
// triggers run immediately and leave the timer alone.
type Service struct {
	daily  Daily
	runner Runner
	log    logx.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu      sync.Mutex
	next    time.Time
	running int
	last    *LastRun
}

type Option func(*Service)

func WithLogger(l logx.Logger) Option { return func(s *Service) { s.log = l } }

func withClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(s *Service) {
		s.now = now
		s.sleep = sleep
	}
}

func New(daily Daily, runner Runner, opts ...Option) *Service {
	s := &Service{
		daily:  daily,
		runner: runner,
		log:    logx.Nop(),
		now:    time.Now,
		sleep:  sleepCtx,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run blocks until ctx is done. After the first target it sleeps Period
// between runs. Failed or panicking runs are logged and the loop keeps going.
func (s *Service) Run(ctx context.Context) error {
	now := s.now()
	wait := s.daily.Wait(now)
	s.arm(now.Add(wait))
	s.log.Info("refresh scheduled",
		logx.String("at", s.daily.String()),
		logx.Time("next", now.Add(wait)),
		logx.Duration("wait", wait),
	)
	if err := s.sleep(ctx, wait); err != nil {
		return nil
	}
	for {
		_, _ = s.execute(ctx, TriggerScheduled)
		if ctx.Err() != nil {
			return nil
		}
		s.arm(s.now().Add(Period))
		if err := s.sleep(ctx, Period); err != nil {
			return nil
		}
	}
}

// TriggerNow runs one refresh on the caller's goroutine.
func (s *Service) TriggerNow(ctx context.Context) (refresh.Outcome, error) {
	return s.execute(ctx, TriggerManual)
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Schedule: s.daily.String(), Next: s.next, Running: s.running}
	if s.last != nil {
		cp := *s.last
		st.Last = &cp
	}
	return st
}

func (s *Service) arm(next time.Time) {
	s.mu.Lock()
	s.next = next
	s.mu.Unlock()
}

func (s *Service) execute(ctx context.Context, trig Trigger) (out refresh.Outcome, err error) {
	s.mu.Lock()
	s.running++
	s.mu.Unlock()

	log := s.log.With(logx.String("trigger", string(trig)))
	defer func() {
		if r := recover(); r != nil {
			log.Error("refresh panic", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = &refresh.Failure{Stage: refresh.StagePanic, Err: fmt.Errorf("%v", r)}
		}
		if err != nil {
			stage := "unknown"
			var f *refresh.Failure
			if errors.As(err, &f) {
				stage = f.Stage
			}
			log.Error("refresh failed", logx.String("stage", stage), logx.Err(err))
		}
		s.mu.Lock()
		s.running--
		s.last = &LastRun{Trigger: trig, Finished: s.now(), Outcome: out, Err: err}
		s.mu.Unlock()
	}()

	return s.runner.Run(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
