// Package core wires configuration, storage, transport and the broadcast
// services together and owns the application lifecycle.
package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/adapters/telegram"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/config"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/services/audience"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/services/broadcast"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/services/promo"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/services/scheduler"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/transport"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

// pruneSpec runs the retention sweep nightly at 04:00 server time.
const pruneSpec = "0 4 * * *"

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	adapter  transport.Adapter
	store    storage.Store
	drafts   *broadcast.Drafts
	runner   *broadcast.Runner
	resolver *audience.Resolver
	sched    *scheduler.Service
	promo    *promo.Service
	router   *Router
	maint    *cron.Cron

	updates chan transport.Update

	runMu     sync.Mutex
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	// The adapter has to exist before the logging service so the Telegram
	// alert sink can send through it; bootstrap with a console logger.
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logCfg(cfg), ad)
	log = log.With(logx.String("comp", "app"))
	applyOperatorChat(logSvc, cfg.Telegram.OperatorChat)

	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	loc, err := config.ParseUTCOffset(cfg.Broadcast.UTCOffset)
	if err != nil {
		return nil, fmt.Errorf("broadcast.utc_offset: %w", err)
	}

	resolver := audience.NewResolver(store, log.With(logx.String("comp", "audience")))
	drafts := broadcast.NewDrafts(loc, log.With(logx.String("comp", "drafts")))

	pacing, err := pacingFromConfig(cfg.Broadcast)
	if err != nil {
		return nil, err
	}
	runner := broadcast.NewRunner(store, resolver, ad, pacing, log.With(logx.String("comp", "delivery")))

	schedCfg, err := schedFromConfig(cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, store, runner, log.With(logx.String("comp", "scheduler")))

	promoSvc := promo.New(promoFromConfig(cfg.Promo), store, ad, log.With(logx.String("comp", "promo")))

	app := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		adapter:  ad,
		store:    store,
		drafts:   drafts,
		runner:   runner,
		resolver: resolver,
		sched:    sched,
		promo:    promoSvc,
		maint:    cron.New(),
		updates:  make(chan transport.Update, 256),
	}
	app.router = NewRouter(RouterDeps{
		Adapter:  ad,
		Store:    store,
		Drafts:   drafts,
		Runner:   runner,
		Resolver: resolver,
		Promo:    promoSvc,
		Admins:   cfg.Telegram.AdminUserIDs,
		Log:      log.With(logx.String("comp", "router")),
	})
	runner.Notify = app.router.NotifyCompletion

	if _, err := app.maint.AddFunc(pruneSpec, app.pruneOnce); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.runCancel != nil {
		a.runMu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runMu.Unlock()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		a.runMu.Lock()
		a.runCancel = nil
		a.runMu.Unlock()
		return err
	}
	if a.sched.Enabled() {
		a.sched.Start(runCtx)
	}
	a.maint.Start()

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		a.router.DispatchLoop(runCtx, a.updates)
	}()
	go func() {
		defer a.wg.Done()
		a.reloadLoop(runCtx)
	}()
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	a.runMu.Unlock()
	if cancel == nil {
		return nil
	}
	a.log.Info("stopping")
	cancel()

	stopCtx, stopCancel := context.WithTimeout(ctx, 5*time.Second)
	defer stopCancel()

	a.sched.Stop(stopCtx)
	a.promo.Stop()
	if err := a.adapter.Stop(stopCtx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}

	select {
	case <-a.maint.Stop().Done():
	case <-stopCtx.Done():
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-stopCtx.Done():
		a.log.Warn("background loops still draining at shutdown deadline")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	_ = a.logs.Close()
	a.log.Info("stopped")
	return nil
}

// reloadLoop applies hot config changes to the live services.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyConfig(ctx, cfg)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logCfg(cfg))
	applyOperatorChat(a.logs, cfg.Telegram.OperatorChat)

	a.router.SetAdmins(cfg.Telegram.AdminUserIDs)

	if loc, err := config.ParseUTCOffset(cfg.Broadcast.UTCOffset); err == nil {
		a.drafts.SetLocation(loc)
	} else {
		a.log.Warn("invalid broadcast.utc_offset on reload", logx.Err(err))
	}
	if pacing, err := pacingFromConfig(cfg.Broadcast); err == nil {
		a.runner.Apply(pacing)
	} else {
		a.log.Warn("invalid broadcast pacing on reload", logx.Err(err))
	}

	prevEnabled := a.sched.Enabled()
	if schedCfg, err := schedFromConfig(cfg.Scheduler); err == nil {
		a.sched.Apply(schedCfg)
		if prevEnabled && !schedCfg.Enabled {
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		} else if !prevEnabled && schedCfg.Enabled {
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
		}
	} else {
		a.log.Warn("invalid scheduler config on reload", logx.Err(err))
	}

	a.promo.Apply(promoFromConfig(cfg.Promo))
	a.log.Info("config reloaded")
}

// pruneOnce deletes terminal broadcast records older than the retention
// window.
func (a *App) pruneOnce() {
	cfg := a.cfgm.Get()
	days := 90
	if cfg != nil && cfg.Broadcast.RetentionDays > 0 {
		days = cfg.Broadcast.RetentionDays
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -days)
	n, err := a.store.PruneBroadcasts(ctx, cutoff)
	if err != nil {
		a.log.Warn("broadcast prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		a.log.Info("broadcast records pruned",
			logx.Int64("deleted", n), logx.Time("cutoff", cutoff))
	}
}

// ---- config mapping ----

func logCfg(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func applyOperatorChat(logs *logx.Service, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		logs.SetTelegramTarget(0)
		return
	}
	if chatID, err := strconv.ParseInt(raw, 10, 64); err == nil {
		logs.SetTelegramTarget(chatID)
	}
}

func pacingFromConfig(cfg config.BroadcastConfig) (broadcast.Pacing, error) {
	pauseFor, err := config.ParseDurationOrDefault("broadcast.pause_for", cfg.PauseFor, time.Second)
	if err != nil {
		return broadcast.Pacing{}, err
	}
	return broadcast.Pacing{
		PauseEvery:    cfg.PauseEvery,
		PauseFor:      pauseFor,
		ProgressEvery: cfg.ProgressEvery,
	}, nil
}

func schedFromConfig(cfg config.SchedulerConfig) (scheduler.Config, error) {
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.PollInterval, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	near, err := config.ParseDurationOrDefault("scheduler.near_window", cfg.NearWindow, 10*time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:      cfg.Enabled,
		PollInterval: poll,
		NearWindow:   near,
	}, nil
}

func promoFromConfig(cfg config.PromoConfig) promo.Config {
	delay := cfg.DelayMinutes
	if delay <= 0 {
		delay = 15
	}
	return promo.Config{
		Enabled: cfg.Enabled,
		Delay:   time.Duration(delay) * time.Minute,
	}
}

func validateConfig(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second); err != nil {
		return err
	}
	if _, err := config.ParseUTCOffset(cfg.Broadcast.UTCOffset); err != nil {
		return fmt.Errorf("broadcast.utc_offset: %w", err)
	}
	if _, err := pacingFromConfig(cfg.Broadcast); err != nil {
		return err
	}
	if _, err := schedFromConfig(cfg.Scheduler); err != nil {
		return err
	}
	if cfg.Broadcast.RetentionDays < 0 {
		return fmt.Errorf("broadcast.retention_days must be >= 0")
	}
	return nil
}
