package core

import (
	"errors"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/services/broadcast"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
	"github.com/bogoslovskiydenis/hetzerbet-bot/pkg/tgui"
)

const (
	msgWelcome            = "Welcome! You will receive our news and offers here."
	msgPickAudience       = "<b>New broadcast</b>\nPick the audience:"
	msgAskText            = "Send the broadcast text."
	msgNeedText           = "The text must not be empty. Send the broadcast text."
	msgAskMedia           = "Attach a photo, video, GIF or document, or skip."
	msgNeedMedia          = "That is not a supported attachment. Send media or skip."
	msgBadMedia           = "Unsupported attachment type. Send a photo, video, GIF or document, or skip."
	msgAskButtons         = "Send URL buttons, one per line as <code>Label | https://example.com</code> (max 8), or skip."
	msgAskSchedule        = "Send now or schedule for later?"
	msgAskDateTime        = "Send the date and time as <code>DD.MM.YYYY HH:MM</code>."
	msgDraftCancelled     = "Broadcast draft cancelled."
	msgNoDraft            = "No broadcast draft in progress. Use /broadcast to start one."
	msgCreateFailed       = "Could not save the broadcast. Try again."
	msgDeliveryStarted    = "Broadcast started. You will get the tally when it finishes."
	msgNoScheduled        = "No scheduled broadcasts."
	msgScheduledCancelled = "Scheduled broadcast cancelled."
	msgCancelTooLate      = "Too late: that broadcast is no longer in the scheduled state."

	btnConfirm         = "✅ Send"
	btnCancel          = "❌ Cancel"
	btnCancelScheduled = "❌ Cancel this broadcast"
)

var audienceLabels = map[string]string{
	storage.TargetAll: "👥 All users",
	"de":              "🇩🇪 German",
	"en":              "🇬🇧 English",
}

func audienceLabel(a string) string {
	if l, ok := audienceLabels[a]; ok {
		return l
	}
	return a
}

func audienceKeyboard() *tele.ReplyMarkup {
	kb := tgui.NewInline()
	for _, a := range audiences {
		kb.Row(tgui.Btn(audienceLabel(a), tgui.MustData(callbackScope, actionAudience, a)))
	}
	return kb.Markup()
}

func skipKeyboard(action string) *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("⏭ Skip", tgui.MustData(callbackScope, action, ""))).
		Markup()
}

func scheduleKeyboard() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(
			tgui.Btn("🚀 Send now", tgui.MustData(callbackScope, actionSendNow, "")),
			tgui.Btn("🕒 Schedule", tgui.MustData(callbackScope, actionSendLater, "")),
		).
		Markup()
}

func buttonsErrorText(err error) string {
	switch {
	case errors.Is(err, broadcast.ErrTooManyButtons):
		return fmt.Sprintf("Too many buttons, at most %d are allowed. Send them again or skip.", broadcast.MaxButtons)
	case errors.Is(err, broadcast.ErrNoButtons):
		return "No valid button lines found. Use <code>Label | https://example.com</code>, one per line, or skip."
	default:
		return "Could not parse the buttons. Send them again or skip."
	}
}

func buttonsAcceptedText(n int) string {
	return fmt.Sprintf("Added %d button(s). %s", n, msgAskSchedule)
}

func scheduleErrorText(err error) string {
	switch {
	case errors.Is(err, broadcast.ErrBadScheduleFormat):
		return "Wrong format. " + msgAskDateTime
	case errors.Is(err, broadcast.ErrBadScheduleDate):
		return "That date does not exist. " + msgAskDateTime
	case errors.Is(err, broadcast.ErrScheduleInPast):
		return "That time is already in the past. " + msgAskDateTime
	default:
		return msgAskDateTime
	}
}

func scheduledConfirmText(at time.Time, loc *time.Location) string {
	return fmt.Sprintf("Broadcast scheduled for <b>%s</b>.", broadcast.FormatScheduleAt(at, loc))
}

func renderPreview(d broadcast.Draft, count int, loc *time.Location) string {
	head := tgui.B("Broadcast preview")
	meta := tgui.Raw("Audience: " + tgui.Esc(audienceLabel(d.Audience)).String())
	if count >= 0 {
		meta += tgui.H(fmt.Sprintf(" (~%d recipients)", count))
	}
	parts := []tgui.H{head, meta}
	if d.Scheduled {
		parts = append(parts, tgui.H("Scheduled: ")+tgui.B(broadcast.FormatScheduleAt(d.ScheduledAt, loc)))
	} else {
		parts = append(parts, tgui.I("Will be sent immediately."))
	}
	parts = append(parts, tgui.B("Message:")+"\n"+tgui.Esc(d.Text))
	if len(d.Buttons) > 0 {
		lines := tgui.B("Buttons:")
		for _, b := range d.Buttons {
			lines += "\n" + tgui.Link(b.Label, b.URL)
		}
		parts = append(parts, lines)
	}
	return tgui.JoinH("\n\n", parts...).String()
}

func renderScheduled(rec *storage.BroadcastRecord, loc *time.Location) string {
	when := "?"
	if rec.ScheduledAt != nil {
		when = broadcast.FormatScheduleAt(*rec.ScheduledAt, loc)
	}
	return tgui.JoinH("\n",
		tgui.B("Scheduled broadcast"),
		tgui.H("When: ")+tgui.B(when),
		tgui.H("Audience: ")+tgui.Esc(audienceLabel(rec.TargetLanguage)),
		tgui.H("Text: ")+tgui.Esc(tgui.TruncRunes(rec.Text, 120)),
	).String()
}

func renderReport(rec *storage.BroadcastRecord, rep broadcast.Report) string {
	return tgui.JoinH("\n",
		tgui.B("Broadcast finished"),
		tgui.H(fmt.Sprintf("Sent: %d", rep.Sent)),
		tgui.H(fmt.Sprintf("Failed: %d (blocked: %d)", rep.Failed, rep.Blocked)),
		tgui.H(fmt.Sprintf("Total: %d", rep.Total)),
		tgui.H("Took: ")+tgui.Esc(rep.Elapsed.Round(time.Second).String()),
	).String()
}
