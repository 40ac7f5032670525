package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*model.Device, error) {
	var (
		d                 model.Device
		id                string
		status            string
		lastSeen, created int64
		owner             sql.NullString
	)

	err := row.Scan(&id, &d.PairingCode, &d.Secret, &d.FriendlyName, &status, &lastSeen, &owner, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan device: %w", err)
	}

	if d.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt device id %q: %w", id, err)
	}
	if owner.Valid {
		ownerID, err := uuid.Parse(owner.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt owner id %q: %w", owner.String, err)
		}
		d.OwnerID = &ownerID
	}

	d.Status = model.DeviceStatus(status)
	d.LastSeenAt = time.UnixMilli(lastSeen).UTC()
	d.CreatedAt = time.UnixMilli(created).UTC()
	return &d, nil
}

func scanMessage(row scanner) (*model.Message, error) {
	var (
		m                        model.Message
		id, senderID, deviceID   string
		content                  []byte
		contentType, status      string
		scheduled, sent, printed sql.NullInt64
		created                  int64
	)

	err := row.Scan(&id, &senderID, &m.SenderName, &deviceID, &content, &contentType, &status,
		&scheduled, &sent, &printed, &m.ErrorMessage, &created)
	if err != nil {
		return nil, err
	}

	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt message id %q: %w", id, err)
	}
	if m.SenderID, err = uuid.Parse(senderID); err != nil {
		return nil, fmt.Errorf("corrupt sender id %q: %w", senderID, err)
	}
	if m.DeviceID, err = uuid.Parse(deviceID); err != nil {
		return nil, fmt.Errorf("corrupt device id %q: %w", deviceID, err)
	}

	m.Content = content
	m.ContentType = model.ContentType(contentType)
	m.State = model.MessageState(status)
	m.ScheduledAt = fromMillis(scheduled)
	m.SentAt = fromMillis(sent)
	m.PrintedAt = fromMillis(printed)
	m.CreatedAt = time.UnixMilli(created).UTC()
	return &m, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
