package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	logx "github.com/bogoslovskiydenis/hetzerbet-bot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- recipients ----

func (s *sqliteStore) UpsertRecipient(ctx context.Context, r Recipient) (bool, error) {
	now := fmtTime(time.Now())
	lang := r.Language
	if lang == "" {
		lang = "en"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users(user_id, username, language, notifications_enabled, first_seen, last_seen)
		 VALUES(?,?,?,?,?,?)`,
		r.UserID, nullStr(r.Username), lang, boolInt(r.NotificationsEnabled), now, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	// Existing user: refresh profile fields but never touch the opt-out flag.
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, language = ?, last_seen = ? WHERE user_id = ?`,
		nullStr(r.Username), lang, now, r.UserID,
	)
	return false, err
}

func (s *sqliteStore) Recipients(ctx context.Context, language string) ([]Recipient, error) {
	q := `SELECT user_id, COALESCE(username,''), language, notifications_enabled
	      FROM users WHERE notifications_enabled = 1`
	args := []any{}
	if language != "" && language != TargetAll {
		q += ` AND language = ?`
		args = append(args, language)
	}
	q += ` ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		var enabled int
		if err := rows.Scan(&r.UserID, &r.Username, &r.Language, &enabled); err != nil {
			return nil, err
		}
		r.NotificationsEnabled = enabled != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountRecipients(ctx context.Context, language string) (int, error) {
	q := `SELECT COUNT(*) FROM users WHERE notifications_enabled = 1`
	args := []any{}
	if language != "" && language != TargetAll {
		q += ` AND language = ?`
		args = append(args, language)
	}
	var n int
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

func (s *sqliteStore) DisableNotifications(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET notifications_enabled = 0 WHERE user_id = ?`, userID)
	return err
}

// ---- broadcasts ----

const broadcastCols = `id, text, COALESCE(media_id,''), COALESCE(media_type,''), buttons,
	target_language, status, scheduled_at, sent_count, failed_count, total_count,
	created_by, created_at, started_at, completed_at, cancelled_at`

func (s *sqliteStore) CreateBroadcast(ctx context.Context, rec *BroadcastRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	btns, err := json.Marshal(rec.Buttons)
	if err != nil {
		return "", err
	}
	lang := rec.TargetLanguage
	if lang == "" {
		lang = TargetAll
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO broadcasts(id, text, media_id, media_type, buttons, target_language,
		   status, scheduled_at, sent_count, failed_count, total_count, created_by, created_at)
		 VALUES(?,?,?,?,?,?,?,?,0,0,0,?,?)`,
		rec.ID, rec.Text, nullStr(rec.MediaID), nullStr(rec.MediaType), string(btns), lang,
		string(rec.Status), nullTime(rec.ScheduledAt), rec.CreatedBy, fmtTime(rec.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	s.log.Debug("broadcast created",
		logx.String("id", rec.ID),
		logx.String("status", string(rec.Status)),
		logx.String("target", lang))
	return rec.ID, nil
}

func (s *sqliteStore) GetBroadcast(ctx context.Context, id string) (*BroadcastRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+broadcastCols+` FROM broadcasts WHERE id = ?`, id)
	rec, err := scanBroadcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *sqliteStore) UpdateBroadcast(ctx context.Context, id string, upd BroadcastUpdate) error {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.SentCount != nil {
		add("sent_count", *upd.SentCount)
	}
	if upd.FailedCount != nil {
		add("failed_count", *upd.FailedCount)
	}
	if upd.TotalCount != nil {
		add("total_count", *upd.TotalCount)
	}
	if upd.StartedAt != nil {
		add("started_at", fmtTime(*upd.StartedAt))
	}
	if upd.CompletedAt != nil {
		add("completed_at", fmtTime(*upd.CompletedAt))
	}
	if upd.CancelledAt != nil {
		add("cancelled_at", fmtTime(*upd.CancelledAt))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) MarkInProgress(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET status = ?, started_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(StatusInProgress), fmtTime(startedAt), id,
		string(StatusPending), string(StatusScheduled),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) DueBroadcasts(ctx context.Context, now time.Time) ([]BroadcastRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+broadcastCols+` FROM broadcasts
		 WHERE status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC`,
		string(StatusScheduled), fmtTime(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBroadcasts(rows)
}

func (s *sqliteStore) ScheduledBroadcasts(ctx context.Context) ([]BroadcastRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+broadcastCols+` FROM broadcasts
		 WHERE status = ? ORDER BY scheduled_at ASC`,
		string(StatusScheduled),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBroadcasts(rows)
}

func (s *sqliteStore) CancelScheduled(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE broadcasts SET status = ?, cancelled_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusCancelled), fmtTime(at), id, string(StatusScheduled),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) PruneBroadcasts(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM broadcasts
		 WHERE status IN (?, ?, ?)
		   AND COALESCE(completed_at, cancelled_at, created_at) < ?`,
		string(StatusCompleted), string(StatusFailed), string(StatusCancelled),
		fmtTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- promo ----

func (s *sqliteStore) RandomPromo(ctx context.Context, language string) (*PromoMessage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, language, text, COALESCE(image_url,''), buttons, active
		 FROM promo_messages WHERE active = 1 AND language = ?
		 ORDER BY RANDOM() LIMIT 1`, language)

	var p PromoMessage
	var btns string
	var active int
	err := row.Scan(&p.ID, &p.Language, &p.Text, &p.ImageURL, &btns, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Active = active != 0
	if err := json.Unmarshal([]byte(btns), &p.Buttons); err != nil {
		return nil, fmt.Errorf("promo %d: bad buttons json: %w", p.ID, err)
	}
	return &p, nil
}

// ---- scan helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBroadcast(row rowScanner) (*BroadcastRecord, error) {
	var (
		rec                                          BroadcastRecord
		btns, status, createdAt                      string
		scheduledAt, startedAt, completed, cancelled sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.Text, &rec.MediaID, &rec.MediaType, &btns,
		&rec.TargetLanguage, &status, &scheduledAt,
		&rec.SentCount, &rec.FailedCount, &rec.TotalCount,
		&rec.CreatedBy, &createdAt, &startedAt, &completed, &cancelled,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if err := json.Unmarshal([]byte(btns), &rec.Buttons); err != nil {
		return nil, fmt.Errorf("broadcast %s: bad buttons json: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.ScheduledAt, err = parseNullTime(scheduledAt); err != nil {
		return nil, err
	}
	if rec.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if rec.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, err
	}
	if rec.CancelledAt, err = parseNullTime(cancelled); err != nil {
		return nil, err
	}
	return &rec, nil
}

func collectBroadcasts(rows *sql.Rows) ([]BroadcastRecord, error) {
	var out []BroadcastRecord
	for rows.Next() {
		rec, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// sqliteTimeFormat is fixed-width so that string comparison in SQL
// (scheduled_at <= ?) matches chronological order.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
