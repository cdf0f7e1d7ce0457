// Package promo sends a one-shot promotional message to a newly seen user
// after a configured delay, using a random active template for the user's
// language.
package promo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/transport"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

const fallbackLanguage = "en"

type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
	SendMedia(ctx context.Context, to transport.ChatTarget, media transport.MediaRef, caption string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Templates interface {
	RandomPromo(ctx context.Context, language string) (*storage.PromoMessage, error)
}

type Config struct {
	Enabled bool
	Delay   time.Duration
}

type Service struct {
	cfgMu  sync.Mutex
	cfg    Config
	store  Templates
	sender Sender
	log    logx.Logger

	mu     sync.Mutex
	timers map[int64]*time.Timer
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, store Templates, sender Sender, log logx.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:    cfg,
		store:  store,
		sender: sender,
		log:    log,
		timers: map[int64]*time.Timer{},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Service) Apply(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

// Schedule arms a one-shot promo for a newly seen user. An already pending
// timer for the same user is left alone so repeated /start taps do not reset
// the clock.
func (s *Service) Schedule(userID int64, language string) {
	s.cfgMu.Lock()
	cfg := s.cfg
	s.cfgMu.Unlock()
	if !cfg.Enabled || cfg.Delay <= 0 {
		return
	}

	s.mu.Lock()
	if _, pending := s.timers[userID]; pending {
		s.mu.Unlock()
		return
	}
	s.timers[userID] = time.AfterFunc(cfg.Delay, func() {
		s.mu.Lock()
		delete(s.timers, userID)
		s.mu.Unlock()
		s.fire(userID, language)
	})
	s.mu.Unlock()
	s.log.Debug("promo scheduled",
		logx.Int64("user", userID),
		logx.String("language", language),
		logx.Duration("delay", cfg.Delay))
}

func (s *Service) fire(userID int64, language string) {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	log := s.log.With(logx.Int64("user", userID))
	tpl, err := s.store.RandomPromo(ctx, language)
	if errors.Is(err, storage.ErrNotFound) && language != fallbackLanguage {
		tpl, err = s.store.RandomPromo(ctx, fallbackLanguage)
	}
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn("promo template lookup failed", logx.Err(err))
		}
		return
	}

	opt := &transport.SendOptions{ParseMode: "HTML"}
	for _, b := range tpl.Buttons {
		opt.URLButtons = append(opt.URLButtons, transport.URLButton{Label: b.Label, URL: b.URL})
	}
	to := transport.ChatTarget{ChatID: userID}
	if tpl.ImageURL != "" {
		// Promo images are hosted URLs; the adapter accepts them in place of
		// a file id. A bad image degrades to a plain text send.
		media := transport.MediaRef{Kind: transport.MediaPhoto, ID: tpl.ImageURL}
		if _, err := s.sender.SendMedia(ctx, to, media, tpl.Text, opt); err == nil {
			log.Info("promo sent", logx.String("language", tpl.Language))
			return
		}
		log.Debug("promo photo send failed, falling back to text")
	}
	if _, err := s.sender.SendText(ctx, to, tpl.Text, opt); err != nil {
		log.Warn("promo send failed", logx.Err(err))
		return
	}
	log.Info("promo sent", logx.String("language", tpl.Language))
}

// Stop cancels every pending timer and any in-flight send.
func (s *Service) Stop() {
	s.cancel()
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
}
