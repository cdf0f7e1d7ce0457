package broadcast

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/storage"
	"github.com/bogoslovskiydenis/hetzerbet-bot/internal/transport"
	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

// Step is the draft assembly position. Transitions are linear with optional
// skips for media and buttons; cancel is legal from any step.
type Step string

const (
	StepText       Step = "text"
	StepMedia      Step = "media"
	StepButtons    Step = "buttons"
	StepScheduling Step = "scheduling"
	StepDateTime   Step = "awaiting_datetime"
	StepPreview    Step = "preview"
)

var (
	ErrNoDraft   = errors.New("no active draft")
	ErrWrongStep = errors.New("input does not match the current draft step")
	ErrEmptyText = errors.New("broadcast text must not be empty")
)

// Draft is the in-progress specification of a broadcast being composed by one
// admin. Nothing is persisted until confirm.
type Draft struct {
	Audience    string // storage.TargetAll or a language code
	Text        string
	Media       *transport.MediaRef
	Buttons     []storage.Button
	Scheduled   bool
	ScheduledAt time.Time
	Step        Step
	StartedAt   time.Time
}

// Drafts holds per-admin draft sessions. It is an explicit keyed store
// injected into the router rather than package-level state, so it can be
// replaced and tested in isolation.
//
// Two admins hold fully independent drafts; an admin starting a new draft
// discards their previous one.
type Drafts struct {
	mu      sync.Mutex
	byAdmin map[int64]*Draft
	loc     *time.Location
	log     logx.Logger
}

func NewDrafts(loc *time.Location, log logx.Logger) *Drafts {
	if loc == nil {
		loc = time.UTC
	}
	return &Drafts{byAdmin: map[int64]*Draft{}, loc: loc, log: log}
}

// Location returns the fixed offset schedule input is interpreted in.
func (d *Drafts) Location() *time.Location {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loc
}

// SetLocation swaps the schedule input offset. Times already parsed into
// in-flight drafts are kept as-is.
func (d *Drafts) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	d.mu.Lock()
	d.loc = loc
	d.mu.Unlock()
}

// Begin starts a fresh draft for adminID targeting the given audience,
// replacing any previous draft.
func (d *Drafts) Begin(adminID int64, audience string) {
	d.mu.Lock()
	d.byAdmin[adminID] = &Draft{
		Audience:  audience,
		Step:      StepText,
		StartedAt: time.Now(),
	}
	d.mu.Unlock()
	d.log.Debug("draft started", logx.Int64("admin", adminID), logx.String("audience", audience))
}

// Get returns a copy of the admin's draft, if any.
func (d *Drafts) Get(adminID int64) (Draft, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, ok := d.byAdmin[adminID]
	if !ok {
		return Draft{}, false
	}
	cp := *dr
	cp.Buttons = append([]storage.Button(nil), dr.Buttons...)
	return cp, true
}

// Active reports whether the admin has a draft in progress.
func (d *Drafts) Active(adminID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.byAdmin[adminID]
	return ok
}

// AwaitingStep reports whether the admin's draft is at the given step.
func (d *Drafts) AwaitingStep(adminID int64, step Step) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, ok := d.byAdmin[adminID]
	return ok && dr.Step == step
}

// Cancel discards the admin's draft from any step. It reports whether a
// draft existed. No persisted record is created by a cancelled draft.
func (d *Drafts) Cancel(adminID int64) bool {
	d.mu.Lock()
	_, ok := d.byAdmin[adminID]
	delete(d.byAdmin, adminID)
	d.mu.Unlock()
	if ok {
		d.log.Debug("draft cancelled", logx.Int64("admin", adminID))
	}
	return ok
}

func (d *Drafts) at(adminID int64, step Step) (*Draft, error) {
	dr, ok := d.byAdmin[adminID]
	if !ok {
		return nil, ErrNoDraft
	}
	if dr.Step != step {
		return nil, ErrWrongStep
	}
	return dr, nil
}

// SetText commits the broadcast text and advances to the media step.
func (d *Drafts) SetText(adminID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, err := d.at(adminID, StepText)
	if err != nil {
		return err
	}
	dr.Text = text
	dr.Step = StepMedia
	return nil
}

// AttachMedia commits exactly one attachment and advances to the buttons
// step. Unsupported kinds are rejected so the router can re-prompt.
func (d *Drafts) AttachMedia(adminID int64, media transport.MediaRef) error {
	switch media.Kind {
	case transport.MediaPhoto, transport.MediaVideo, transport.MediaAnimation, transport.MediaDocument:
	default:
		return ErrUnsupportedMedia
	}
	if media.ID == "" {
		return ErrUnsupportedMedia
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, err := d.at(adminID, StepMedia)
	if err != nil {
		return err
	}
	m := media
	dr.Media = &m
	dr.Step = StepButtons
	return nil
}

// SkipMedia advances past the media step without an attachment.
func (d *Drafts) SkipMedia(adminID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, err := d.at(adminID, StepMedia)
	if err != nil {
		return err
	}
	dr.Step = StepButtons
	return nil
}

// SetButtons parses the button block and advances to the scheduling choice.
// Parse failures (no well-formed lines, too many buttons) leave the draft
// unchanged.
func (d *Drafts) SetButtons(adminID int64, raw string) (int, error) {
	buttons, err := ParseButtons(raw)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, derr := d.at(adminID, StepButtons)
	if derr != nil {
		return 0, derr
	}
	dr.Buttons = buttons
	dr.Step = StepScheduling
	return len(buttons), nil
}

// SkipButtons advances with zero buttons.
func (d *Drafts) SkipButtons(adminID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, err := d.at(adminID, StepButtons)
	if err != nil {
		return err
	}
	dr.Step = StepScheduling
	return nil
}

// ChooseImmediate selects the send-now path and moves to preview.
func (d *Drafts) ChooseImmediate(adminID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, err := d.at(adminID, StepScheduling)
	if err != nil {
		return err
	}
	dr.Scheduled = false
	dr.ScheduledAt = time.Time{}
	dr.Step = StepPreview
	return nil
}

// ChooseScheduled selects the deferred path and starts awaiting the datetime.
func (d *Drafts) ChooseScheduled(adminID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, err := d.at(adminID, StepScheduling)
	if err != nil {
		return err
	}
	dr.Step = StepDateTime
	return nil
}

// SetScheduleAt parses DD.MM.YYYY HH:MM in the configured offset, requires a
// strictly future time, and moves to preview. Validation failures leave the
// draft unchanged at the datetime step.
func (d *Drafts) SetScheduleAt(adminID int64, raw string, now time.Time) (time.Time, error) {
	at, err := ParseScheduleAt(strings.TrimSpace(raw), d.Location(), now)
	if err != nil {
		return time.Time{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, derr := d.at(adminID, StepDateTime)
	if derr != nil {
		return time.Time{}, derr
	}
	dr.Scheduled = true
	dr.ScheduledAt = at
	dr.Step = StepPreview
	return at, nil
}

// Take removes and returns the draft for confirmation. The caller owns the
// returned draft; a missing draft (expired session) yields ErrNoDraft.
func (d *Drafts) Take(adminID int64) (Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dr, ok := d.byAdmin[adminID]
	if !ok {
		return Draft{}, ErrNoDraft
	}
	if dr.Step != StepPreview {
		return Draft{}, ErrWrongStep
	}
	delete(d.byAdmin, adminID)
	return *dr, nil
}

// Record converts a confirmed draft into a persistent record. Scheduled
// drafts start life as "scheduled", immediate ones as "pending".
func (dr Draft) Record(createdBy int64) *storage.BroadcastRecord {
	rec := &storage.BroadcastRecord{
		Text:           dr.Text,
		Buttons:        dr.Buttons,
		TargetLanguage: dr.Audience,
		Status:         storage.StatusPending,
		CreatedBy:      createdBy,
	}
	if dr.Media != nil {
		rec.MediaID = dr.Media.ID
		rec.MediaType = string(dr.Media.Kind)
	}
	if dr.Scheduled {
		rec.Status = storage.StatusScheduled
		at := dr.ScheduledAt
		rec.ScheduledAt = &at
	}
	return rec
}
