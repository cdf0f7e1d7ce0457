package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/transport"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

// Sender is the slice of the transport adapter the delivery engine needs.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
	SendMedia(ctx context.Context, to transport.ChatTarget, media transport.MediaRef, caption string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Audience answers who a target language resolves to.
type Audience interface {
	Resolve(ctx context.Context, targetLanguage string) ([]storage.Recipient, error)
}

// Pacing controls delivery cadence. Zero values fall back to defaults.
type Pacing struct {
	PauseEvery    int           // sends between rate pauses
	PauseFor      time.Duration // length of each pause
	ProgressEvery int           // recipients between progress checkpoints
}

func (p Pacing) withDefaults() Pacing {
	if p.PauseEvery <= 0 {
		p.PauseEvery = 30
	}
	if p.PauseFor < 0 {
		p.PauseFor = 0
	}
	if p.ProgressEvery <= 0 {
		p.ProgressEvery = 50
	}
	return p
}

// Report summarizes one completed delivery run.
type Report struct {
	Sent    int
	Failed  int
	Blocked int
	Total   int
	Elapsed time.Duration
}

// Runner delivers a persisted broadcast to its resolved audience. Sends are
// strictly sequential; per-recipient failures are counted and never abort the
// run.
type Runner struct {
	store    storage.Store
	audience Audience
	sender   Sender
	log      logx.Logger

	mu     sync.Mutex
	pacing Pacing

	// Notify, when set, receives the final report after the terminal status
	// is persisted. It is best-effort: errors are logged and discarded.
	Notify func(ctx context.Context, rec *storage.BroadcastRecord, rep Report) error
}

func NewRunner(store storage.Store, audience Audience, sender Sender, pacing Pacing, log logx.Logger) *Runner {
	return &Runner{
		store:    store,
		audience: audience,
		sender:   sender,
		pacing:   pacing.withDefaults(),
		log:      log,
	}
}

// Apply swaps the pacing config. A delivery already running keeps the pacing
// it started with.
func (r *Runner) Apply(p Pacing) {
	r.mu.Lock()
	r.pacing = p.withDefaults()
	r.mu.Unlock()
}

// Deliver runs the full fan-out for rec. It first claims the record via the
// conditional in_progress transition; losing the claim (another worker got
// there first, or the record was cancelled) is not an error. An empty
// audience completes immediately with zero counts.
//
// Context cancellation persists the counts so far, marks the record failed,
// and returns the context error.
func (r *Runner) Deliver(ctx context.Context, rec *storage.BroadcastRecord) error {
	log := r.log.With(logx.String("broadcast", rec.ID))
	r.mu.Lock()
	pacing := r.pacing
	r.mu.Unlock()

	recipients, err := r.audience.Resolve(ctx, rec.TargetLanguage)
	if err != nil {
		return fmt.Errorf("resolve audience: %w", err)
	}

	won, err := r.store.MarkInProgress(ctx, rec.ID, time.Now())
	if err != nil {
		return fmt.Errorf("mark in progress: %w", err)
	}
	if !won {
		log.Debug("broadcast already claimed, skipping")
		return nil
	}

	total := len(recipients)
	if err := r.store.UpdateBroadcast(ctx, rec.ID, storage.BroadcastUpdate{TotalCount: &total}); err != nil {
		log.Warn("persist total count failed", logx.Err(err))
	}

	log.Info("delivery started",
		logx.String("audience", rec.TargetLanguage),
		logx.Int("recipients", total))

	start := time.Now()
	rep := Report{Total: total}
	opt := r.sendOptions(rec)

	for i, rcpt := range recipients {
		if err := ctx.Err(); err != nil {
			r.finish(rec, &rep, start, storage.StatusFailed, log)
			return err
		}

		if err := r.sendOne(ctx, rec, rcpt, opt); err != nil {
			rep.Failed++
			if transport.IsBlocked(err) {
				rep.Blocked++
				if derr := r.store.DisableNotifications(ctx, rcpt.UserID); derr != nil {
					log.Warn("disable notifications failed",
						logx.Int64("user", rcpt.UserID), logx.Err(derr))
				} else {
					log.Debug("recipient opted out", logx.Int64("user", rcpt.UserID))
				}
			} else {
				log.Warn("send failed", logx.Int64("user", rcpt.UserID), logx.Err(err))
			}
		} else {
			rep.Sent++
		}

		processed := i + 1
		if processed%pacing.ProgressEvery == 0 && processed < total {
			r.checkpoint(ctx, rec.ID, &rep, log)
		}
		if processed%pacing.PauseEvery == 0 && processed < total && pacing.PauseFor > 0 {
			if err := sleepCtx(ctx, pacing.PauseFor); err != nil {
				r.finish(rec, &rep, start, storage.StatusFailed, log)
				return err
			}
		}
	}

	r.finish(rec, &rep, start, storage.StatusCompleted, log)
	return nil
}

func (r *Runner) sendOne(ctx context.Context, rec *storage.BroadcastRecord, rcpt storage.Recipient, opt *transport.SendOptions) error {
	to := transport.ChatTarget{ChatID: rcpt.UserID}
	if rec.MediaID != "" {
		media := transport.MediaRef{Kind: transport.MediaKind(rec.MediaType), ID: rec.MediaID}
		_, err := r.sender.SendMedia(ctx, to, media, rec.Text, opt)
		return err
	}
	_, err := r.sender.SendText(ctx, to, rec.Text, opt)
	return err
}

func (r *Runner) sendOptions(rec *storage.BroadcastRecord) *transport.SendOptions {
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	for _, b := range rec.Buttons {
		opt.URLButtons = append(opt.URLButtons, transport.URLButton{Label: b.Label, URL: b.URL})
	}
	return opt
}

// checkpoint persists absolute counters mid-run. Failures are logged and
// delivery continues; the next checkpoint or the final persist catches up.
func (r *Runner) checkpoint(ctx context.Context, id string, rep *Report, log logx.Logger) {
	sent, failed := rep.Sent, rep.Failed
	if err := r.store.UpdateBroadcast(ctx, id, storage.BroadcastUpdate{
		SentCount:   &sent,
		FailedCount: &failed,
	}); err != nil {
		log.Warn("progress checkpoint failed", logx.Err(err))
		return
	}
	log.Debug("progress checkpoint",
		logx.Int("sent", sent), logx.Int("failed", failed), logx.Int("total", rep.Total))
}

// finish persists the terminal status with final counters and fires the
// completion notification. It uses a fresh context so shutdown still records
// the outcome.
func (r *Runner) finish(rec *storage.BroadcastRecord, rep *Report, start time.Time, status storage.Status, log logx.Logger) {
	rep.Elapsed = time.Since(start)

	pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	sent, failed := rep.Sent, rep.Failed
	if err := r.store.UpdateBroadcast(pctx, rec.ID, storage.BroadcastUpdate{
		Status:      &status,
		SentCount:   &sent,
		FailedCount: &failed,
		CompletedAt: &now,
	}); err != nil {
		log.Error("persist final status failed", logx.String("status", string(status)), logx.Err(err))
	}

	log.Info("delivery finished",
		logx.String("status", string(status)),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Int("blocked", rep.Blocked),
		logx.Int("total", rep.Total),
		logx.Duration("elapsed", rep.Elapsed))

	if r.Notify != nil {
		if err := r.Notify(pctx, rec, *rep); err != nil {
			log.Warn("completion notice failed", logx.Err(err))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
