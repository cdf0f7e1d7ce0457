// Package telegram implements the transport adapter on top of telebot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/transport"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	out       chan<- transport.Update
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the Telegram poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)))
				}
			}
		}
	}()

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		a.emitMessage(c.Message(), nil)
		return nil
	})
	a.bot.Handle(tele.OnPhoto, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Photo == nil {
			return nil
		}
		a.emitMessage(m, &transport.MediaRef{Kind: transport.MediaPhoto, ID: m.Photo.FileID})
		return nil
	})
	a.bot.Handle(tele.OnVideo, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Video == nil {
			return nil
		}
		a.emitMessage(m, &transport.MediaRef{Kind: transport.MediaVideo, ID: m.Video.FileID})
		return nil
	})
	a.bot.Handle(tele.OnAnimation, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Animation == nil {
			return nil
		}
		a.emitMessage(m, &transport.MediaRef{Kind: transport.MediaAnimation, ID: m.Animation.FileID})
		return nil
	})
	a.bot.Handle(tele.OnDocument, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Document == nil {
			return nil
		}
		a.emitMessage(m, &transport.MediaRef{Kind: transport.MediaDocument, ID: m.Document.FileID})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		up := transport.Update{
			Kind: transport.UpdateCallback,
			Callback: &transport.Callback{
				ID:        cb.ID,
				ChatID:    m.Chat.ID,
				FromID:    cb.Sender.ID,
				MessageID: m.ID,
				Data:      strings.TrimSpace(cb.Data),
			},
		}
		a.emit(up)
		return nil
	})

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop() called
	}()

	return nil
}

func (a *Adapter) emitMessage(m *tele.Message, media *transport.MediaRef) {
	if m == nil || m.Sender == nil {
		return
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	a.emit(transport.Update{
		Kind: transport.UpdateMessage,
		Message: &transport.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			LanguageCode: m.Sender.LanguageCode,
			Text:         text,
			Media:        media,
		},
	})
}

func (a *Adapter) emit(up transport.Update) {
	select {
	case a.out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	go a.bot.Stop()

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window keeps shutdown snappy even if getUpdates long-poll is
	// still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text, sendOptions(opt))
	if err != nil {
		return transport.MessageRef{}, wrapSendErr(err)
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

// SendMedia sends one attachment with a caption. The media ID may be a
// Telegram file id or an http(s) URL.
func (a *Adapter) SendMedia(ctx context.Context, to transport.ChatTarget, media transport.MediaRef, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	var what interface{}
	file := mediaFile(media.ID)
	switch media.Kind {
	case transport.MediaPhoto:
		what = &tele.Photo{File: file, Caption: caption}
	case transport.MediaVideo:
		what = &tele.Video{File: file, Caption: caption}
	case transport.MediaAnimation:
		what = &tele.Animation{File: file, Caption: caption}
	case transport.MediaDocument:
		what = &tele.Document{File: file, Caption: caption}
	default:
		return transport.MessageRef{}, fmt.Errorf("unsupported media kind %q", media.Kind)
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, what, sendOptions(opt))
	if err != nil {
		return transport.MessageRef{}, wrapSendErr(err)
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.Edit(m, text, sendOptions(opt))
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func mediaFile(id string) tele.File {
	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		return tele.FromURL(id)
	}
	return tele.File{FileID: id}
}

func sendOptions(opt *transport.SendOptions) *tele.SendOptions {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	if len(opt.URLButtons) > 0 {
		rm := &tele.ReplyMarkup{}
		rows := make([]tele.Row, 0, len(opt.URLButtons))
		for _, b := range opt.URLButtons {
			rows = append(rows, rm.Row(rm.URL(b.Label, b.URL)))
		}
		rm.Inline(rows...)
		sendOpt.ReplyMarkup = rm
	} else if opt.ReplyMarkupAdapter != nil {
		if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
			sendOpt.ReplyMarkup = rm
		}
	}
	return sendOpt
}

// wrapSendErr maps the blocked-by-user failure onto transport.ErrBlocked so
// callers can distinguish opt-outs from transient errors.
func wrapSendErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tele.ErrBlockedByUser) || errors.Is(err, tele.ErrUserIsDeactivated) ||
		strings.Contains(err.Error(), "bot was blocked") {
		return fmt.Errorf("%w: %v", transport.ErrBlocked, err)
	}
	return err
}
