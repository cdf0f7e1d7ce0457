package broadcast

import (
	"errors"
	"testing"
	"time"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/transport"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

func newTestDrafts() *Drafts {
	return NewDrafts(time.FixedZone("UTC+3", 3*60*60), logx.Nop())
}

func TestDraftFullFlowImmediate(t *testing.T) {
	t.Parallel()

	d := newTestDrafts()
	const admin int64 = 7

	d.Begin(admin, storage.TargetAll)
	if !d.AwaitingStep(admin, StepText) {
		t.Fatal("new draft should await text")
	}
	if err := d.SetText(admin, "hello everyone"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	if err := d.AttachMedia(admin, transport.MediaRef{Kind: transport.MediaPhoto, ID: "file-1"}); err != nil {
		t.Fatalf("AttachMedia: %v", err)
	}
	if _, err := d.SetButtons(admin, "Go | https://example.com"); err != nil {
		t.Fatalf("SetButtons: %v", err)
	}
	if err := d.ChooseImmediate(admin); err != nil {
		t.Fatalf("ChooseImmediate: %v", err)
	}

	draft, err := d.Take(admin)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if draft.Scheduled {
		t.Fatal("immediate draft marked scheduled")
	}
	rec := draft.Record(admin)
	if rec.Status != storage.StatusPending {
		t.Fatalf("status = %q, want pending", rec.Status)
	}
	if rec.MediaID != "file-1" || rec.MediaType != "photo" {
		t.Fatalf("media = %q/%q", rec.MediaID, rec.MediaType)
	}
	if len(rec.Buttons) != 1 || rec.CreatedBy != admin {
		t.Fatalf("record = %+v", rec)
	}
	if d.Active(admin) {
		t.Fatal("draft should be gone after Take")
	}
}

func TestDraftScheduledFlowWithSkips(t *testing.T) {
	t.Parallel()

	d := newTestDrafts()
	const admin int64 = 1

	d.Begin(admin, "de")
	if err := d.SetText(admin, "text"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	if err := d.SkipMedia(admin); err != nil {
		t.Fatalf("SkipMedia: %v", err)
	}
	if err := d.SkipButtons(admin); err != nil {
		t.Fatalf("SkipButtons: %v", err)
	}
	if err := d.ChooseScheduled(admin); err != nil {
		t.Fatalf("ChooseScheduled: %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	at, err := d.SetScheduleAt(admin, "02.01.2026 10:00", now)
	if err != nil {
		t.Fatalf("SetScheduleAt: %v", err)
	}

	draft, err := d.Take(admin)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	rec := draft.Record(admin)
	if rec.Status != storage.StatusScheduled {
		t.Fatalf("status = %q, want scheduled", rec.Status)
	}
	if rec.ScheduledAt == nil || !rec.ScheduledAt.Equal(at) {
		t.Fatalf("scheduled_at = %v, want %v", rec.ScheduledAt, at)
	}
	if rec.MediaID != "" || len(rec.Buttons) != 0 {
		t.Fatalf("skipped fields leaked into record: %+v", rec)
	}
}

func TestDraftStepOrderEnforced(t *testing.T) {
	t.Parallel()

	d := newTestDrafts()
	const admin int64 = 2

	if err := d.SetText(admin, "x"); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("SetText without draft: %v", err)
	}

	d.Begin(admin, storage.TargetAll)
	if err := d.SkipButtons(admin); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("SkipButtons at text step: %v", err)
	}
	if err := d.ChooseImmediate(admin); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("ChooseImmediate at text step: %v", err)
	}
	if _, err := d.Take(admin); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("Take before preview: %v", err)
	}
	if err := d.SetText(admin, "  "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("empty text: %v", err)
	}
}

func TestDraftInvalidInputDoesNotAdvance(t *testing.T) {
	t.Parallel()

	d := newTestDrafts()
	const admin int64 = 3

	d.Begin(admin, storage.TargetAll)
	if err := d.SetText(admin, "t"); err != nil {
		t.Fatal(err)
	}
	if err := d.AttachMedia(admin, transport.MediaRef{Kind: "sticker", ID: "x"}); !errors.Is(err, ErrUnsupportedMedia) {
		t.Fatalf("bad media kind: %v", err)
	}
	if !d.AwaitingStep(admin, StepMedia) {
		t.Fatal("draft advanced past media on invalid input")
	}
	if err := d.SkipMedia(admin); err != nil {
		t.Fatal(err)
	}
	if _, err := d.SetButtons(admin, "garbage"); !errors.Is(err, ErrNoButtons) {
		t.Fatalf("bad buttons: %v", err)
	}
	if !d.AwaitingStep(admin, StepButtons) {
		t.Fatal("draft advanced past buttons on invalid input")
	}
}

func TestDraftIsolationAndRestart(t *testing.T) {
	t.Parallel()

	d := newTestDrafts()
	d.Begin(1, "de")
	d.Begin(2, "en")
	if err := d.SetText(1, "for germans"); err != nil {
		t.Fatal(err)
	}

	da, _ := d.Get(1)
	db, _ := d.Get(2)
	if da.Audience != "de" || db.Audience != "en" {
		t.Fatalf("audiences mixed: %q %q", da.Audience, db.Audience)
	}
	if db.Step != StepText {
		t.Fatal("admin 2 draft advanced by admin 1 input")
	}

	// Restarting replaces the old draft entirely.
	d.Begin(1, "en")
	da, _ = d.Get(1)
	if da.Text != "" || da.Step != StepText || da.Audience != "en" {
		t.Fatalf("restart kept old state: %+v", da)
	}
}

func TestDraftCancelFromAnyStep(t *testing.T) {
	t.Parallel()

	d := newTestDrafts()
	const admin int64 = 9

	if d.Cancel(admin) {
		t.Fatal("cancel without draft reported true")
	}
	d.Begin(admin, storage.TargetAll)
	_ = d.SetText(admin, "x")
	if !d.Cancel(admin) {
		t.Fatal("cancel reported false for live draft")
	}
	if d.Active(admin) {
		t.Fatal("draft survived cancel")
	}
	if _, err := d.Take(admin); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("Take after cancel: %v", err)
	}
}
