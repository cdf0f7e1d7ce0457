// Package audience resolves the recipient set a broadcast targets.
package audience

import (
	"context"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

// Source is the recipient read slice of the store.
type Source interface {
	Recipients(ctx context.Context, language string) ([]storage.Recipient, error)
	CountRecipients(ctx context.Context, language string) (int, error)
}

// Resolver answers "who is eligible for this broadcast" as a side-effect-free
// filtered read. The whole recipient set is held in memory for one fan-out
// pass; pagination is deliberately absent.
type Resolver struct {
	store Source
	log   logx.Logger
}

func NewResolver(store Source, log logx.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

// Resolve returns notification-enabled recipients for the target language.
// storage.TargetAll (or "") matches every language.
func (r *Resolver) Resolve(ctx context.Context, targetLanguage string) ([]storage.Recipient, error) {
	recipients, err := r.store.Recipients(ctx, targetLanguage)
	if err != nil {
		return nil, err
	}
	r.log.Debug("audience resolved",
		logx.String("target", targetLanguage),
		logx.Int("count", len(recipients)))
	return recipients, nil
}

// Count returns the audience size without materializing the recipient list.
// Used by draft previews.
func (r *Resolver) Count(ctx context.Context, targetLanguage string) (int, error) {
	return r.store.CountRecipients(ctx, targetLanguage)
}
