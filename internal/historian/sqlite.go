package historian

import (
	"context"
	"fmt"
	"time"

	"github.com/ibm-messaging/iot-go/internal/infrastructure/database"
	"github.com/ibm-messaging/iot-go/pkg/message"
)

const (
	// defaultHistoryLimit applies when History is called with limit <= 0.
	defaultHistoryLimit = 100

	// receivedAtLayout has fixed width so received_at sorts as text.
	receivedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLite records messages into the message_history table.
type SQLite struct {
	db *database.DB
}

// NewSQLite wraps a migrated database. The recorder owns db.
func NewSQLite(db *database.DB) *SQLite {
	return &SQLite{db: db}
}

// Record inserts msg.
func (s *SQLite) Record(ctx context.Context, msg message.Message) error {
	e := NewEntry(msg)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_history
			(id, kind, device_type, device_id, app_id, name, format, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.DeviceType, e.DeviceID, e.AppID, e.Name, e.Format, e.Payload,
		e.ReceivedAt.UTC().Format(receivedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// History returns up to limit messages from one device, newest first.
func (s *SQLite) History(ctx context.Context, deviceType, deviceID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, device_type, device_id, app_id, name, format, payload, received_at
		FROM message_history
		WHERE device_type = ? AND device_id = ?
		ORDER BY received_at DESC, rowid DESC
		LIMIT ?`,
		deviceType, deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var receivedAt string
		if err := rows.Scan(&e.ID, &e.Kind, &e.DeviceType, &e.DeviceID, &e.AppID,
			&e.Name, &e.Format, &e.Payload, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.ReceivedAt, err = time.Parse(receivedAtLayout, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing received_at %q: %w", receivedAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return entries, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
