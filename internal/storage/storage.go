package storage

import (
	"context"
	"errors"
	"time"

	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// TargetAll addresses every notification-eligible recipient regardless of
// stored language.
const TargetAll = "all"

// Recipient is the read-model of a user the broadcast pipeline may message.
// The rest of the user entity (phone, onboarding state) is owned elsewhere.
type Recipient struct {
	UserID               int64
	Username             string
	Language             string
	NotificationsEnabled bool
}

// Button is one URL button attached to a broadcast, rendered one per row.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether a record in this status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// BroadcastRecord is the persistent form of a confirmed broadcast.
//
// Invariant: SentCount+FailedCount <= TotalCount once in_progress, and status
// only moves forward (pending|scheduled -> in_progress -> completed|failed,
// scheduled -> cancelled).
type BroadcastRecord struct {
	ID             string
	Text           string
	MediaID        string // transport file reference; empty when text-only
	MediaType      string // photo|video|animation|document
	Buttons        []Button
	TargetLanguage string // "all" or a language code
	Status         Status
	ScheduledAt    *time.Time
	SentCount      int
	FailedCount    int
	TotalCount     int
	CreatedBy      int64
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
}

// BroadcastUpdate is a partial update; nil fields are left unchanged.
// Counter fields are absolute values (last-write-wins), never deltas, so
// repeating a progress checkpoint cannot corrupt totals.
type BroadcastUpdate struct {
	Status      *Status
	SentCount   *int
	FailedCount *int
	TotalCount  *int
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// PromoMessage is a template for the delayed promo sent to newly seen users.
type PromoMessage struct {
	ID       int64
	Language string
	Text     string
	ImageURL string
	Buttons  []Button
	Active   bool
}

// Store is the persistence API used by the broadcast pipeline.
type Store interface {
	// UpsertRecipient records or refreshes a recipient profile. It reports
	// whether the user was seen for the first time. The opt-out flag of an
	// existing user is never overwritten.
	UpsertRecipient(ctx context.Context, r Recipient) (bool, error)
	// Recipients returns notification-enabled recipients; language TargetAll
	// (or "") means no language filter.
	Recipients(ctx context.Context, language string) ([]Recipient, error)
	CountRecipients(ctx context.Context, language string) (int, error)
	DisableNotifications(ctx context.Context, userID int64) error

	CreateBroadcast(ctx context.Context, rec *BroadcastRecord) (string, error)
	GetBroadcast(ctx context.Context, id string) (*BroadcastRecord, error)
	UpdateBroadcast(ctx context.Context, id string, upd BroadcastUpdate) error
	// MarkInProgress transitions pending|scheduled -> in_progress as a single
	// conditional update and reports whether this caller won the transition.
	MarkInProgress(ctx context.Context, id string, startedAt time.Time) (bool, error)
	// DueBroadcasts returns scheduled records with scheduled_at <= now,
	// earliest first.
	DueBroadcasts(ctx context.Context, now time.Time) ([]BroadcastRecord, error)
	// ScheduledBroadcasts returns every scheduled record, earliest first.
	ScheduledBroadcasts(ctx context.Context) ([]BroadcastRecord, error)
	// CancelScheduled cancels a record only while still scheduled; it reports
	// false when the record is missing or already past that state.
	CancelScheduled(ctx context.Context, id string, at time.Time) (bool, error)
	// PruneBroadcasts deletes terminal records completed/cancelled before cutoff.
	PruneBroadcasts(ctx context.Context, cutoff time.Time) (int64, error)

	RandomPromo(ctx context.Context, language string) (*PromoMessage, error)

	Close() error
}

// Open initializes the sqlite store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
