package audience

import (
	"context"
	"testing"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

type fakeSource struct {
	byLang map[string][]storage.Recipient
}

func (f *fakeSource) all() []storage.Recipient {
	var out []storage.Recipient
	for _, rs := range f.byLang {
		out = append(out, rs...)
	}
	return out
}

func (f *fakeSource) Recipients(_ context.Context, language string) ([]storage.Recipient, error) {
	if language == "" || language == storage.TargetAll {
		return f.all(), nil
	}
	return f.byLang[language], nil
}

func (f *fakeSource) CountRecipients(ctx context.Context, language string) (int, error) {
	rs, err := f.Recipients(ctx, language)
	return len(rs), err
}

func TestResolve(t *testing.T) {
	t.Parallel()

	src := &fakeSource{byLang: map[string][]storage.Recipient{
		"de": {{UserID: 1}, {UserID: 2}},
		"en": {{UserID: 3}},
	}}
	r := NewResolver(src, logx.Nop())
	ctx := context.Background()

	de, err := r.Resolve(ctx, "de")
	if err != nil {
		t.Fatal(err)
	}
	if len(de) != 2 {
		t.Fatalf("de = %d recipients, want 2", len(de))
	}

	all, err := r.Resolve(ctx, storage.TargetAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d recipients, want 3", len(all))
	}

	n, err := r.Count(ctx, "en")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}
