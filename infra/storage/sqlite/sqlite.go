// Package sqlite implements store.Store on a local SQLite database (pure Go driver).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/store"
	_ "modernc.org/sqlite"
)

var _ store.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
    id TEXT PRIMARY KEY,
    pairing_code TEXT NOT NULL UNIQUE,
    secret TEXT NOT NULL,
    friendly_name TEXT NOT NULL,
    status TEXT NOT NULL,
    last_seen_at INTEGER NOT NULL,
    owner_id TEXT,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    sender_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    content BLOB NOT NULL,
    content_type TEXT NOT NULL,
    status TEXT NOT NULL,
    scheduled_at INTEGER,
    sent_at INTEGER,
    printed_at INTEGER,
    error_message TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_due ON messages (status, scheduled_at);
`

const selectMessage = `
SELECT m.id, m.sender_id, COALESCE(u.name, ?), m.device_id, m.content, m.content_type, m.status,
       m.scheduled_at, m.sent_at, m.printed_at, COALESCE(m.error_message, ''), m.created_at
FROM messages m
LEFT JOIN users u ON u.id = m.sender_id
`

type Store struct {
	db *sql.DB
}

// Open connects to dsn, applies the schema and returns a ready store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers; SQLite allows one at a time anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) GetDeviceByPairingCode(ctx context.Context, code string) (*model.Device, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, pairing_code, secret, friendly_name, status, last_seen_at, owner_id, created_at
        FROM devices WHERE pairing_code = ?`, code)
	return scanDevice(row)
}

func (s *Store) GetDevice(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, pairing_code, secret, friendly_name, status, last_seen_at, owner_id, created_at
        FROM devices WHERE id = ?`, id.String())
	return scanDevice(row)
}

func (s *Store) CreateDevice(ctx context.Context, d *model.Device) error {
	var owner sql.NullString
	if d.OwnerID != nil {
		owner = sql.NullString{String: d.OwnerID.String(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
        INSERT INTO devices (id, pairing_code, secret, friendly_name, status, last_seen_at, owner_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (pairing_code) DO NOTHING`,
		d.ID.String(), d.PairingCode, d.Secret, d.FriendlyName, string(d.Status),
		d.LastSeenAt.UnixMilli(), owner, d.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert device: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if n == 0 {
		return model.ErrDuplicatePairingCode
	}
	return nil
}

func (s *Store) UpdateDevicePresence(ctx context.Context, id uuid.UUID, status model.DeviceStatus, lastSeen time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, last_seen_at = ? WHERE id = ?`,
		string(status), lastSeen.UnixMilli(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update device presence: %w", err)
	}
	return expectRow(res, model.ErrDeviceNotFound)
}

func (s *Store) TouchDevice(ctx context.Context, id uuid.UUID, lastSeen time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET last_seen_at = ? WHERE id = ?`,
		lastSeen.UnixMilli(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	return expectRow(res, model.ErrDeviceNotFound)
}

func (s *Store) ClaimDevice(ctx context.Context, id, ownerID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET owner_id = ? WHERE id = ? AND owner_id IS NULL`,
		ownerID.String(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to claim device: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read claim result: %w", err)
	}
	if n == 1 {
		return nil
	}

	exists, err := s.exists(ctx, `SELECT 1 FROM devices WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrDeviceNotFound
	}
	return model.ErrDeviceAlreadyClaimed
}

func (s *Store) ResetPresence(ctx context.Context, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, last_seen_at = ? WHERE status = ?`,
		string(model.DeviceOffline), at.UnixMilli(), string(model.DeviceOnline),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset device presence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reset result: %w", err)
	}
	return int(n), nil
}

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO messages (id, sender_id, device_id, content, content_type, status,
                              scheduled_at, sent_at, printed_at, error_message, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.SenderID.String(), m.DeviceID.String(), []byte(m.Content),
		string(m.ContentType), string(m.State),
		nullMillis(m.ScheduledAt), nullMillis(m.SentAt), nullMillis(m.PrintedAt),
		sql.NullString{String: m.ErrorMessage, Valid: m.ErrorMessage != ""},
		m.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, selectMessage+`WHERE m.id = ?`, store.UnknownSender, id.String())

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrMessageNotFound
	}
	return msg, err
}

func (s *Store) GetDueScheduledMessages(ctx context.Context, now time.Time) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		selectMessage+`WHERE m.status = ? AND m.scheduled_at IS NOT NULL AND m.scheduled_at <= ?
        ORDER BY m.scheduled_at`,
		store.UnknownSender, string(model.MessageQueued), now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load due messages: %w", err)
	}
	defer rows.Close()

	var due []*model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		due = append(due, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error occurred during rows iteration: %w", err)
	}
	return due, nil
}

func (s *Store) MarkMessageSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ?, sent_at = ? WHERE id = ? AND status = ?`,
		string(model.MessageSent), at.UnixMilli(), id.String(), string(model.MessageQueued),
	)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}
	return s.guardedResult(ctx, res, id)
}

func (s *Store) ScheduleMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET scheduled_at = ? WHERE id = ? AND status = ? AND scheduled_at IS NULL`,
		at.UnixMilli(), id.String(), string(model.MessageQueued),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule message: %w", err)
	}
	return s.guardedResult(ctx, res, id)
}

// UpdateMessageState applies the transition in one guarded statement so a
// concurrent writer can never regress a terminal state.
func (s *Store) UpdateMessageState(ctx context.Context, u model.StateUpdate) error {
	from := priorStates(u.State)
	if len(from) == 0 {
		return model.ErrInvalidTransition
	}

	args := []any{
		string(u.State),
		string(u.State), u.At.UnixMilli(),
		u.Error,
		u.MessageID.String(),
	}
	for _, st := range from {
		args = append(args, string(st))
	}

	query := fmt.Sprintf(`
        UPDATE messages SET
            status = ?,
            printed_at = CASE WHEN ? = 'printed' THEN ? ELSE printed_at END,
            error_message = COALESCE(NULLIF(?, ''), error_message)
        WHERE id = ? AND status IN (%s)`,
		strings.TrimSuffix(strings.Repeat("?,", len(from)), ","),
	)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update message state: %w", err)
	}
	return s.guardedResult(ctx, res, u.MessageID)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var (
		rawID string
		u     model.User
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM users WHERE id = ?`, id.String()).Scan(&rawID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if u.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("corrupt user id %q: %w", rawID, err)
	}
	return &u, nil
}

func (s *Store) PutUser(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (id, name) VALUES (?, ?)
        ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		u.ID.String(), u.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *Store) guardedResult(ctx context.Context, res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 1 {
		return nil
	}

	exists, err := s.exists(ctx, `SELECT 1 FROM messages WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrMessageNotFound
	}
	return model.ErrInvalidTransition
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

func priorStates(to model.MessageState) []model.MessageState {
	var from []model.MessageState
	for _, st := range []model.MessageState{model.MessageQueued, model.MessageSent, model.MessagePrinted, model.MessageError} {
		if st.CanTransition(to) {
			from = append(from, st)
		}
	}
	return from
}

func expectRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
