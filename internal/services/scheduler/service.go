// Package scheduler polls the broadcast store for due scheduled broadcasts
// and hands each one to the delivery runner.
//
// Polling is adaptive: every tick lists scheduled records cheaply, but the
// due-check pass only runs when the nearest record is within the configured
// near window. The conditional in_progress transition at the store is the
// mutual exclusion gate, so a record is never delivered twice from the
// scheduled state. A single scheduler instance per store is assumed.
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

// Deliverer runs the fan-out for one claimed record.
type Deliverer interface {
	Deliver(ctx context.Context, rec *storage.BroadcastRecord) error
}

// Lister is the slice of the store the poller reads from.
type Lister interface {
	ScheduledBroadcasts(ctx context.Context) ([]storage.BroadcastRecord, error)
	DueBroadcasts(ctx context.Context, now time.Time) ([]storage.BroadcastRecord, error)
}

type Config struct {
	Enabled      bool
	PollInterval time.Duration // tick cadence
	NearWindow   time.Duration // full due pass runs when nearest due is this close
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.NearWindow <= 0 {
		c.NearWindow = 10 * time.Minute
	}
	return c
}

type Service struct {
	store  Lister
	runner Deliverer
	log    logx.Logger
	now    func() time.Time

	mu        sync.Mutex
	cfg       Config
	stopCh    chan struct{}
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, store Lister, runner Deliverer, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg.withDefaults(),
		store:  store,
		runner: runner,
		log:    log,
		now:    time.Now,
	}
}

// Apply swaps the polling config. Interval changes take effect on the next
// tick of a running loop.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Start launches the polling loop. Calling Start while running is a no-op;
// calling it while a Stop is in flight waits for the stop to finish first.
func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()
	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	runCtx := s.runCtx
	stopCh := s.stopCh
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduler loop",
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		s.loop(runCtx, stopCh)
	}()
	s.log.Info("scheduler started",
		logx.Duration("interval", s.cfg.PollInterval),
		logx.Duration("near_window", s.cfg.NearWindow))
}

// Stop halts polling. A delivery already handed to the runner finishes its
// final persist on its own. Idempotent; concurrent Stops wait on the first.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) loop(ctx context.Context, stopCh chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		done := s.stopDone
		s.stopDone = nil
		s.mu.Unlock()
		if done != nil {
			close(done)
		}
		s.log.Info("scheduler stopped")
	}()

	for {
		s.mu.Lock()
		interval := s.cfg.PollInterval
		s.mu.Unlock()

		t := time.NewTimer(interval)
		select {
		case <-stopCh:
			t.Stop()
			return
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		s.tick(ctx)
	}
}

// tick is one poll iteration. Exported through Tick for tests.
func (s *Service) tick(ctx context.Context) {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	near := s.cfg.NearWindow
	s.mu.Unlock()
	if !enabled {
		return
	}

	now := s.now()
	scheduled, err := s.store.ScheduledBroadcasts(ctx)
	if err != nil {
		s.log.Warn("list scheduled failed", logx.Err(err))
		return
	}
	if len(scheduled) == 0 {
		return
	}

	// Earliest first per the store contract; first record with a time is the
	// nearest one.
	var nearest *time.Time
	for i := range scheduled {
		if scheduled[i].ScheduledAt != nil {
			nearest = scheduled[i].ScheduledAt
			break
		}
	}
	if nearest == nil {
		s.log.Warn("scheduled records without scheduled_at", logx.Int("count", len(scheduled)))
		return
	}
	if until := nearest.Sub(now); until > near {
		s.log.Debug("nearest broadcast not near",
			logx.Time("due_at", *nearest),
			logx.Duration("in", until),
			logx.Int("scheduled", len(scheduled)))
		return
	}

	s.duePass(ctx, now)
}

// Tick runs a single poll iteration immediately.
func (s *Service) Tick(ctx context.Context) { s.tick(ctx) }

func (s *Service) duePass(ctx context.Context, now time.Time) {
	due, err := s.store.DueBroadcasts(ctx, now)
	if err != nil {
		s.log.Warn("list due failed", logx.Err(err))
		return
	}
	for i := range due {
		rec := due[i]
		if ctx.Err() != nil {
			return
		}
		log := s.log.With(logx.String("broadcast", rec.ID))
		log.Info("due broadcast picked up", logx.Time("scheduled_at", deref(rec.ScheduledAt)))
		// Deliver claims the record itself; a lost claim (cancelled or taken
		// since the due query) is silently skipped inside.
		if err := s.runner.Deliver(ctx, &rec); err != nil {
			log.Error("scheduled delivery failed", logx.Err(err))
		}
	}
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
