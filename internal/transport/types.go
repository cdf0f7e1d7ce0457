package transport

import (
	"context"
	"errors"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	LanguageCode string
	Text         string
	// Media is set when the message carries a supported attachment.
	// For photos the adapter picks the largest available size.
	Media *MediaRef
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// MediaKind enumerates the attachment types a broadcast may carry.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
	MediaDocument  MediaKind = "document"
)

// MediaRef is an opaque reference to an uploaded file (Telegram file_id).
type MediaRef struct {
	Kind MediaKind
	ID   string
}

// URLButton is a transport-neutral inline URL button. Adapters render one
// button per row.
type URLButton struct {
	Label string
	URL   string
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	URLButtons         []URLButton
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// ErrBlocked signals that the recipient has blocked the bot. Adapters wrap the
// underlying transport error so callers can test with errors.Is.
var ErrBlocked = errors.New("recipient blocked the bot")

// IsBlocked reports whether err indicates the recipient blocked the bot.
func IsBlocked(err error) bool {
	return errors.Is(err, ErrBlocked)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMedia(ctx context.Context, to ChatTarget, media MediaRef, caption string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}
