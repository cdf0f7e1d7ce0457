package core

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/services/audience"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/services/broadcast"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/services/promo"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/transport"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
	"github.com/bogoslovskiydenis/hetzerbet-bot/pkg/tgui"
)

// callbackScope prefixes all inline callback data owned by the broadcast
// panel.
const callbackScope = "bc"

// audiences an admin can target. storage.TargetAll plus the supported
// interface languages.
var audiences = []string{storage.TargetAll, "de", "en"}

type RouterDeps struct {
	Adapter  transport.Adapter
	Store    storage.Store
	Drafts   *broadcast.Drafts
	Runner   *broadcast.Runner
	Resolver *audience.Resolver
	Promo    *promo.Service
	Admins   []int64
	Log      logx.Logger
}

// Router consumes transport updates and drives the broadcast admin panel.
// All updates are handled on one goroutine, so draft transitions for a given
// admin are naturally sequential.
type Router struct {
	adapter  transport.Adapter
	store    storage.Store
	drafts   *broadcast.Drafts
	runner   *broadcast.Runner
	resolver *audience.Resolver
	promo    *promo.Service
	log      logx.Logger

	mu     sync.Mutex
	admins map[int64]struct{}
}

func NewRouter(deps RouterDeps) *Router {
	r := &Router{
		adapter:  deps.Adapter,
		store:    deps.Store,
		drafts:   deps.Drafts,
		runner:   deps.Runner,
		resolver: deps.Resolver,
		promo:    deps.Promo,
		log:      deps.Log,
	}
	r.SetAdmins(deps.Admins)
	return r
}

func (r *Router) SetAdmins(ids []int64) {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	r.mu.Lock()
	r.admins = m
	r.mu.Unlock()
}

func (r *Router) isAdmin(id int64) bool {
	r.mu.Lock()
	_, ok := r.admins[id]
	r.mu.Unlock()
	return ok
}

func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			r.dispatch(ctx, up)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, up transport.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in update handler",
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			r.handleMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			r.handleCallback(ctx, up.Callback)
		}
	}
}

// ---- messages ----

func (r *Router) handleMessage(ctx context.Context, m *transport.Message) {
	lang := normalizeLang(m.LanguageCode)
	created, err := r.store.UpsertRecipient(ctx, storage.Recipient{
		UserID:               m.FromID,
		Username:             m.FromUsername,
		Language:             lang,
		NotificationsEnabled: true,
	})
	if err != nil {
		r.log.Warn("recipient upsert failed", logx.Int64("user", m.FromID), logx.Err(err))
	} else if created {
		r.promo.Schedule(m.FromID, lang)
	}

	if strings.HasPrefix(m.Text, "/") {
		r.handleCommand(ctx, m)
		return
	}
	if r.isAdmin(m.FromID) && r.drafts.Active(m.FromID) {
		r.handleDraftInput(ctx, m)
	}
}

func (r *Router) handleCommand(ctx context.Context, m *transport.Message) {
	cmd := strings.ToLower(strings.TrimSpace(m.Text))
	if i := strings.IndexAny(cmd, " @"); i > 0 {
		cmd = cmd[:i]
	}

	if cmd == "/start" {
		r.reply(ctx, m.ChatID, msgWelcome, nil)
		return
	}
	if !r.isAdmin(m.FromID) {
		r.log.Debug("command from non-admin ignored",
			logx.Int64("user", m.FromID), logx.String("cmd", cmd))
		return
	}
	switch cmd {
	case "/broadcast":
		r.drafts.Cancel(m.FromID)
		r.reply(ctx, m.ChatID, msgPickAudience, audienceKeyboard())
	case "/scheduled":
		r.sendScheduledList(ctx, m.ChatID)
	case "/cancel":
		if r.drafts.Cancel(m.FromID) {
			r.reply(ctx, m.ChatID, msgDraftCancelled, nil)
		} else {
			r.reply(ctx, m.ChatID, msgNoDraft, nil)
		}
	}
}

// handleDraftInput feeds a plain admin message into the draft at its current
// step.
func (r *Router) handleDraftInput(ctx context.Context, m *transport.Message) {
	adminID := m.FromID
	switch {
	case r.drafts.AwaitingStep(adminID, broadcast.StepText):
		if err := r.drafts.SetText(adminID, m.Text); err != nil {
			r.reply(ctx, m.ChatID, msgNeedText, nil)
			return
		}
		r.reply(ctx, m.ChatID, msgAskMedia, skipKeyboard(actionSkipMedia))

	case r.drafts.AwaitingStep(adminID, broadcast.StepMedia):
		if m.Media == nil {
			r.reply(ctx, m.ChatID, msgNeedMedia, skipKeyboard(actionSkipMedia))
			return
		}
		if err := r.drafts.AttachMedia(adminID, *m.Media); err != nil {
			r.reply(ctx, m.ChatID, msgBadMedia, skipKeyboard(actionSkipMedia))
			return
		}
		r.reply(ctx, m.ChatID, msgAskButtons, skipKeyboard(actionSkipButtons))

	case r.drafts.AwaitingStep(adminID, broadcast.StepButtons):
		n, err := r.drafts.SetButtons(adminID, m.Text)
		if err != nil {
			r.reply(ctx, m.ChatID, buttonsErrorText(err), skipKeyboard(actionSkipButtons))
			return
		}
		r.reply(ctx, m.ChatID, buttonsAcceptedText(n), scheduleKeyboard())

	case r.drafts.AwaitingStep(adminID, broadcast.StepDateTime):
		at, err := r.drafts.SetScheduleAt(adminID, m.Text, time.Now())
		if err != nil {
			r.reply(ctx, m.ChatID, scheduleErrorText(err), nil)
			return
		}
		r.log.Debug("draft scheduled",
			logx.Int64("admin", adminID), logx.Time("at", at))
		r.sendPreview(ctx, m.ChatID, adminID)
	}
}

// ---- callbacks ----

const (
	actionAudience    = "aud"
	actionSkipMedia   = "skipmedia"
	actionSkipButtons = "skipbtn"
	actionSendNow     = "now"
	actionSendLater   = "later"
	actionConfirm     = "confirm"
	actionCancel      = "cancel"
	actionDrop        = "drop"
)

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	if err := r.adapter.AnswerCallback(ctx, cb.ID, ""); err != nil {
		r.log.Debug("callback ack failed", logx.Err(err))
	}
	if !r.isAdmin(cb.FromID) {
		return
	}
	scope, action, payload := tgui.SplitData(cb.Data)
	if scope != callbackScope {
		return
	}
	adminID := cb.FromID

	switch action {
	case actionAudience:
		if !validAudience(payload) {
			return
		}
		r.drafts.Begin(adminID, payload)
		r.reply(ctx, cb.ChatID, msgAskText, nil)

	case actionSkipMedia:
		if r.drafts.SkipMedia(adminID) == nil {
			r.reply(ctx, cb.ChatID, msgAskButtons, skipKeyboard(actionSkipButtons))
		}

	case actionSkipButtons:
		if r.drafts.SkipButtons(adminID) == nil {
			r.reply(ctx, cb.ChatID, msgAskSchedule, scheduleKeyboard())
		}

	case actionSendNow:
		if r.drafts.ChooseImmediate(adminID) == nil {
			r.sendPreview(ctx, cb.ChatID, adminID)
		}

	case actionSendLater:
		if r.drafts.ChooseScheduled(adminID) == nil {
			r.reply(ctx, cb.ChatID, msgAskDateTime, nil)
		}

	case actionConfirm:
		r.confirmDraft(ctx, cb.ChatID, adminID)

	case actionCancel:
		if r.drafts.Cancel(adminID) {
			r.reply(ctx, cb.ChatID, msgDraftCancelled, nil)
		}

	case actionDrop:
		r.cancelScheduled(ctx, cb.ChatID, payload)
	}
}

// confirmDraft persists the draft and either fires delivery immediately or
// leaves the record for the poller.
func (r *Router) confirmDraft(ctx context.Context, chatID, adminID int64) {
	draft, err := r.drafts.Take(adminID)
	if err != nil {
		if errors.Is(err, broadcast.ErrNoDraft) {
			r.reply(ctx, chatID, msgNoDraft, nil)
		}
		return
	}
	rec := draft.Record(adminID)
	id, err := r.store.CreateBroadcast(ctx, rec)
	if err != nil {
		r.log.Error("broadcast create failed", logx.Err(err))
		r.reply(ctx, chatID, msgCreateFailed, nil)
		return
	}

	if draft.Scheduled {
		r.reply(ctx, chatID, scheduledConfirmText(draft.ScheduledAt, r.drafts.Location()), nil)
		return
	}
	r.reply(ctx, chatID, msgDeliveryStarted, nil)
	go func() {
		if err := r.runner.Deliver(ctx, rec); err != nil {
			r.log.Error("immediate delivery failed",
				logx.String("broadcast", id), logx.Err(err))
		}
	}()
}

func (r *Router) cancelScheduled(ctx context.Context, chatID int64, id string) {
	if id == "" {
		return
	}
	ok, err := r.store.CancelScheduled(ctx, id, time.Now())
	if err != nil {
		r.log.Error("cancel scheduled failed", logx.String("broadcast", id), logx.Err(err))
		return
	}
	if ok {
		r.reply(ctx, chatID, msgScheduledCancelled, nil)
	} else {
		r.reply(ctx, chatID, msgCancelTooLate, nil)
	}
}

func (r *Router) sendScheduledList(ctx context.Context, chatID int64) {
	recs, err := r.store.ScheduledBroadcasts(ctx)
	if err != nil {
		r.log.Error("list scheduled failed", logx.Err(err))
		return
	}
	if len(recs) == 0 {
		r.reply(ctx, chatID, msgNoScheduled, nil)
		return
	}
	loc := r.drafts.Location()
	for i := range recs {
		rec := &recs[i]
		var kb any
		if data, err := tgui.Data(callbackScope, actionDrop, rec.ID); err != nil {
			r.log.Warn("cancel button skipped", logx.String("broadcast", rec.ID), logx.Err(err))
		} else {
			kb = tgui.NewInline().Row(tgui.Btn(btnCancelScheduled, data)).Markup()
		}
		r.reply(ctx, chatID, renderScheduled(rec, loc), kb)
	}
}

func (r *Router) sendPreview(ctx context.Context, chatID, adminID int64) {
	draft, ok := r.drafts.Get(adminID)
	if !ok {
		return
	}
	count, err := r.resolver.Count(ctx, draft.Audience)
	if err != nil {
		r.log.Warn("audience count failed", logx.Err(err))
		count = -1
	}
	kb := tgui.ConfirmInline(
		tgui.Btn(btnConfirm, tgui.MustData(callbackScope, actionConfirm, "")),
		tgui.Btn(btnCancel, tgui.MustData(callbackScope, actionCancel, "")),
	).Markup()

	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: kb}
	text := renderPreview(draft, count, r.drafts.Location())
	if draft.Media != nil {
		if _, err := r.adapter.SendMedia(ctx, transport.ChatTarget{ChatID: chatID}, *draft.Media, text, opt); err == nil {
			return
		}
		// Fall back to text so the admin can still confirm.
	}
	if _, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt); err != nil {
		r.log.Warn("preview send failed", logx.Err(err))
	}
}

// NotifyCompletion sends the final tally to the broadcast creator. Wired as
// the delivery runner's completion hook.
func (r *Router) NotifyCompletion(ctx context.Context, rec *storage.BroadcastRecord, rep broadcast.Report) error {
	if rec.CreatedBy == 0 {
		return nil
	}
	_, err := r.adapter.SendText(ctx,
		transport.ChatTarget{ChatID: rec.CreatedBy},
		renderReport(rec, rep),
		&transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

// ---- helpers ----

func (r *Router) reply(ctx context.Context, chatID int64, text string, markup any) {
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if markup != nil {
		opt.ReplyMarkupAdapter = markup
	}
	if _, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func validAudience(v string) bool {
	for _, a := range audiences {
		if a == v {
			return true
		}
	}
	return false
}

// normalizeLang maps a Telegram language code onto a stored audience
// language. Unsupported codes fall back to "en".
func normalizeLang(code string) string {
	code = strings.ToLower(code)
	if i := strings.IndexByte(code, '-'); i > 0 {
		code = code[:i]
	}
	switch code {
	case "de", "en":
		return code
	default:
		return "en"
	}
}
