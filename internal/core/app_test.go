package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/config"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/transport"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

// failingAdapter refuses to start and counts the attempts.
type failingAdapter struct {
	starts int
	err    error
}

func (f *failingAdapter) Start(context.Context, chan<- transport.Update) error {
	f.starts++
	return f.err
}

func (f *failingAdapter) Stop(context.Context) error { return nil }

func (f *failingAdapter) SendText(context.Context, transport.ChatTarget, string, *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{}, errors.New("not running")
}

func (f *failingAdapter) SendMedia(context.Context, transport.ChatTarget, transport.MediaRef, string, *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{}, errors.New("not running")
}

func (f *failingAdapter) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return errors.New("not running")
}

func (f *failingAdapter) AnswerCallback(context.Context, string, string) error {
	return errors.New("not running")
}

func TestStartRetriesAfterAdapterFailure(t *testing.T) {
	t.Parallel()

	ad := &failingAdapter{err: errors.New("telegram: unauthorized")}
	app := &App{
		cfgm:    config.NewManager(filepath.Join(t.TempDir(), "config.yaml")),
		log:     logx.Nop(),
		adapter: ad,
		updates: make(chan transport.Update, 1),
	}

	if err := app.Start(context.Background()); !errors.Is(err, ad.err) {
		t.Fatalf("first Start err = %v, want %v", err, ad.err)
	}
	// A failed start must leave the app stopped so the caller can retry.
	if err := app.Start(context.Background()); !errors.Is(err, ad.err) {
		t.Fatalf("second Start err = %v, want %v", err, ad.err)
	}
	if ad.starts != 2 {
		t.Fatalf("adapter start attempts = %d, want 2", ad.starts)
	}

	// Stop after a failed start is a no-op, not a teardown of live services.
	if err := app.Stop(context.Background()); err != nil {
		t.Fatalf("Stop after failed Start: %v", err)
	}
}
