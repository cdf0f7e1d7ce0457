package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

type fakeLister struct {
	mu        sync.Mutex
	scheduled []storage.BroadcastRecord
	dueCalls  int
}

func (f *fakeLister) ScheduledBroadcasts(context.Context) ([]storage.BroadcastRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheduled, nil
}

func (f *fakeLister) DueBroadcasts(_ context.Context, now time.Time) ([]storage.BroadcastRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dueCalls++
	var due []storage.BroadcastRecord
	for _, rec := range f.scheduled {
		if rec.ScheduledAt != nil && !rec.ScheduledAt.After(now) {
			due = append(due, rec)
		}
	}
	return due, nil
}

func (f *fakeLister) dueCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dueCalls
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []string
}

func (f *fakeDeliverer) Deliver(_ context.Context, rec *storage.BroadcastRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, rec.ID)
	return nil
}

func (f *fakeDeliverer) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.delivered...)
}

func scheduledAt(id string, at time.Time) storage.BroadcastRecord {
	return storage.BroadcastRecord{ID: id, Status: storage.StatusScheduled, ScheduledAt: &at}
}

func newTestService(store Lister, runner Deliverer, now time.Time) *Service {
	s := New(Config{Enabled: true, PollInterval: time.Hour, NearWindow: 10 * time.Minute}, store, runner, logx.Nop())
	s.now = func() time.Time { return now }
	return s
}

func TestTickDeliversDueInOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeLister{scheduled: []storage.BroadcastRecord{
		scheduledAt("early", now.Add(-10*time.Minute)),
		scheduledAt("late", now.Add(-time.Minute)),
		scheduledAt("future", now.Add(time.Hour)),
	}}
	runner := &fakeDeliverer{}
	s := newTestService(store, runner, now)

	s.Tick(context.Background())

	got := runner.ids()
	if len(got) != 2 || got[0] != "early" || got[1] != "late" {
		t.Fatalf("delivered = %v, want [early late]", got)
	}
}

func TestTickSkipsDuePassOutsideNearWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeLister{scheduled: []storage.BroadcastRecord{
		scheduledAt("distant", now.Add(2*time.Hour)),
	}}
	runner := &fakeDeliverer{}
	s := newTestService(store, runner, now)

	s.Tick(context.Background())

	if n := store.dueCallCount(); n != 0 {
		t.Fatalf("due pass ran %d times outside the near window", n)
	}
	if len(runner.ids()) != 0 {
		t.Fatalf("delivered = %v, want none", runner.ids())
	}
}

func TestTickRunsDuePassInsideNearWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeLister{scheduled: []storage.BroadcastRecord{
		scheduledAt("soon", now.Add(5*time.Minute)),
	}}
	runner := &fakeDeliverer{}
	s := newTestService(store, runner, now)

	s.Tick(context.Background())

	if n := store.dueCallCount(); n != 1 {
		t.Fatalf("due pass calls = %d, want 1", n)
	}
	// Near but not yet due: the due query returns nothing.
	if len(runner.ids()) != 0 {
		t.Fatalf("delivered = %v, want none", runner.ids())
	}
}

func TestTickNoScheduled(t *testing.T) {
	t.Parallel()

	store := &fakeLister{}
	runner := &fakeDeliverer{}
	s := newTestService(store, runner, time.Now())

	s.Tick(context.Background())

	if store.dueCallCount() != 0 || len(runner.ids()) != 0 {
		t.Fatal("empty schedule triggered work")
	}
}

func TestTickDisabled(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := &fakeLister{scheduled: []storage.BroadcastRecord{
		scheduledAt("x", now.Add(-time.Minute)),
	}}
	runner := &fakeDeliverer{}
	s := newTestService(store, runner, now)
	s.Apply(Config{Enabled: false, PollInterval: time.Hour, NearWindow: 10 * time.Minute})

	s.Tick(context.Background())

	if len(runner.ids()) != 0 {
		t.Fatalf("disabled scheduler delivered %v", runner.ids())
	}
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestService(&fakeLister{}, &fakeDeliverer{}, time.Now())
	ctx := context.Background()

	s.Start(ctx)
	s.Start(ctx) // no-op while running

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	s.Stop(stopCtx)
	s.Stop(stopCtx) // no-op once stopped

	// Restart after a full stop works.
	s.Start(ctx)
	s.Stop(stopCtx)
}
