package promo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/transport"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

type fakeTemplates struct {
	mu       sync.Mutex
	byLang   map[string]*storage.PromoMessage
	requests []string
}

func (f *fakeTemplates) RandomPromo(_ context.Context, language string) (*storage.PromoMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, language)
	if p, ok := f.byLang[language]; ok {
		return p, nil
	}
	return nil, storage.ErrNotFound
}

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	media []transport.MediaRef
	done  chan struct{}
}

func (f *fakeSender) signal() {
	select {
	case f.done <- struct{}{}:
	default:
	}
}

func (f *fakeSender) SendText(_ context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	f.signal()
	return transport.MessageRef{}, nil
}

func (f *fakeSender) SendMedia(_ context.Context, _ transport.ChatTarget, media transport.MediaRef, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	f.media = append(f.media, media)
	f.mu.Unlock()
	f.signal()
	return transport.MessageRef{}, nil
}

func waitSend(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("promo send did not happen")
	}
}

func TestScheduleSendsAfterDelay(t *testing.T) {
	t.Parallel()

	store := &fakeTemplates{byLang: map[string]*storage.PromoMessage{
		"de": {Language: "de", Text: "Willkommen!"},
	}}
	sender := &fakeSender{done: make(chan struct{}, 1)}
	s := New(Config{Enabled: true, Delay: time.Millisecond}, store, sender, logx.Nop())
	defer s.Stop()

	s.Schedule(1, "de")
	waitSend(t, sender.done)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.texts) != 1 || sender.texts[0] != "Willkommen!" {
		t.Fatalf("texts = %v", sender.texts)
	}
}

func TestScheduleFallsBackToEnglishTemplates(t *testing.T) {
	t.Parallel()

	store := &fakeTemplates{byLang: map[string]*storage.PromoMessage{
		"en": {Language: "en", Text: "Welcome!"},
	}}
	sender := &fakeSender{done: make(chan struct{}, 1)}
	s := New(Config{Enabled: true, Delay: time.Millisecond}, store, sender, logx.Nop())
	defer s.Stop()

	s.Schedule(2, "de")
	waitSend(t, sender.done)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.requests) != 2 || store.requests[0] != "de" || store.requests[1] != "en" {
		t.Fatalf("lookup order = %v", store.requests)
	}
}

func TestSchedulePhotoTemplateUsesMedia(t *testing.T) {
	t.Parallel()

	store := &fakeTemplates{byLang: map[string]*storage.PromoMessage{
		"en": {Language: "en", Text: "Look!", ImageURL: "https://cdn.example/p.jpg"},
	}}
	sender := &fakeSender{done: make(chan struct{}, 1)}
	s := New(Config{Enabled: true, Delay: time.Millisecond}, store, sender, logx.Nop())
	defer s.Stop()

	s.Schedule(3, "en")
	waitSend(t, sender.done)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.media) != 1 || sender.media[0].ID != "https://cdn.example/p.jpg" {
		t.Fatalf("media = %v", sender.media)
	}
}

func TestScheduleDisabledOrDuplicate(t *testing.T) {
	t.Parallel()

	store := &fakeTemplates{byLang: map[string]*storage.PromoMessage{}}
	sender := &fakeSender{done: make(chan struct{}, 1)}

	off := New(Config{Enabled: false, Delay: time.Hour}, store, sender, logx.Nop())
	off.Schedule(1, "en")
	off.mu.Lock()
	if len(off.timers) != 0 {
		off.mu.Unlock()
		t.Fatal("disabled service armed a timer")
	}
	off.mu.Unlock()

	on := New(Config{Enabled: true, Delay: time.Hour}, store, sender, logx.Nop())
	defer on.Stop()
	on.Schedule(1, "en")
	on.Schedule(1, "en") // repeated contact must not reset the clock
	on.mu.Lock()
	if len(on.timers) != 1 {
		on.mu.Unlock()
		t.Fatalf("timers = %d, want 1", len(on.timers))
	}
	on.mu.Unlock()
	on.Stop()
	on.mu.Lock()
	if len(on.timers) != 0 {
		on.mu.Unlock()
		t.Fatal("Stop left timers armed")
	}
	on.mu.Unlock()
}
