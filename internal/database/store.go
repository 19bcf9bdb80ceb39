package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/lablink/lablink/internal/notify"
)

// Store wraps the database functions that implement the business
// rules. The heavy lifting (hash generation, scan validation, audit
// logging) lives in SQL; Store is a thin typed boundary over it.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// GetUser loads the notification-relevant user columns. A missing row
// returns (nil, nil) so callers can distinguish "not found" from a
// query failure.
func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	const query = `SELECT id, email, phone_number, full_name FROM users WHERE id = $1`

	var user User
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&user.ID, &user.Email, &user.PhoneNumber, &user.FullName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	return &user, nil
}

// GetNotificationPreferences returns the recipient's stored preference
// rows as a read-only snapshot.
func (s *Store) GetNotificationPreferences(ctx context.Context, userID string) ([]notify.PreferenceRow, error) {
	const query = `SELECT notification_type, channel, enabled FROM get_user_notification_preferences($1)`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification preferences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var prefs []notify.PreferenceRow
	for rows.Next() {
		var row notify.PreferenceRow
		if err := rows.Scan(&row.NotificationType, &row.Channel, &row.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan preference row: %w", err)
		}
		prefs = append(prefs, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read preference rows: %w", err)
	}
	return prefs, nil
}

// CreateNotificationParams mirrors the send_notification database
// function's arguments.
type CreateNotificationParams struct {
	UserID     string
	Type       string
	Title      string
	Message    string
	ActionLink string
	Channels   []notify.Channel
	Priority   notify.Priority
	ActionData map[string]interface{}
}

// CreateNotification inserts the notification row and returns its ID.
func (s *Store) CreateNotification(ctx context.Context, p CreateNotificationParams) (string, error) {
	const query = `SELECT send_notification($1, $2, $3, $4, $5, $6, $7, $8)`

	channels := make([]string, len(p.Channels))
	for i, ch := range p.Channels {
		channels[i] = string(ch)
	}

	var actionData interface{}
	if p.ActionData != nil {
		raw, err := json.Marshal(p.ActionData)
		if err != nil {
			return "", fmt.Errorf("failed to encode action data: %w", err)
		}
		actionData = raw
	}

	var actionLink interface{}
	if p.ActionLink != "" {
		actionLink = p.ActionLink
	}

	var notificationID string
	err := s.db.QueryRowContext(ctx, query,
		p.UserID, p.Type, p.Title, p.Message, actionLink,
		pq.Array(channels), string(p.Priority), actionData,
	).Scan(&notificationID)
	if err != nil {
		return "", fmt.Errorf("failed to create notification: %w", err)
	}
	return notificationID, nil
}

// UpdateDispatchStatus records the per-channel delivery verdict on the
// notification row.
func (s *Store) UpdateDispatchStatus(ctx context.Context, notificationID string, result notify.DispatchResult) error {
	const query = `SELECT update_notification_dispatch_status($1, $2, $3, $4)`

	var detail interface{}
	if result.Detail != "" {
		detail = result.Detail
	}

	if _, err := s.db.ExecContext(ctx, query, notificationID, string(result.Channel), string(result.Status), detail); err != nil {
		return fmt.Errorf("failed to update dispatch status for %s/%s: %w", notificationID, result.Channel, err)
	}
	return nil
}

// GetItem loads the QR-relevant item columns. A missing row returns
// (nil, nil).
func (s *Store) GetItem(ctx context.Context, itemID string) (*Item, error) {
	const query = `SELECT id, department_id, category_id, status, name, serial_number FROM items WHERE id = $1`

	var item Item
	err := s.db.QueryRowContext(ctx, query, itemID).Scan(
		&item.ID, &item.DepartmentID, &item.CategoryID, &item.Status, &item.Name, &item.SerialNumber,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", itemID, err)
	}
	return &item, nil
}

// GenerateQRHash asks the database to produce the signed QR hash for
// an item. Signing stays in SQL so the secret never leaves the
// database.
func (s *Store) GenerateQRHash(ctx context.Context, item *Item, metadata map[string]interface{}) (string, error) {
	const query = `SELECT generate_qr_hash($1, $2, $3, $4, $5)`

	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr metadata: %w", err)
	}

	var hash string
	err = s.db.QueryRowContext(ctx, query, item.ID, item.DepartmentID, item.CategoryID, item.Status, raw).Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("failed to generate qr hash: %w", err)
	}
	return hash, nil
}

// UpdateItemQR persists the generated hash and the encoded payload on
// the item row.
func (s *Store) UpdateItemQR(ctx context.Context, itemID, qrHash string, qrPayload map[string]interface{}) error {
	const query = `UPDATE items SET qr_hash = $2, qr_payload = $3 WHERE id = $1`

	raw, err := json.Marshal(qrPayload)
	if err != nil {
		return fmt.Errorf("failed to encode qr payload: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, itemID, qrHash, raw); err != nil {
		return fmt.Errorf("failed to persist qr payload for item %s: %w", itemID, err)
	}
	return nil
}

// ValidateQRScan delegates scan validation to the database function
// and returns its result row as raw JSON, shape-owned by SQL.
func (s *Store) ValidateQRScan(ctx context.Context, qrPayload string, userID, ip, userAgent *string) (json.RawMessage, error) {
	const query = `SELECT to_jsonb(v) FROM validate_qr_scan($1, $2, $3, $4) v`

	var result json.RawMessage
	err := s.db.QueryRowContext(ctx, query, qrPayload, userID, ip, userAgent).Scan(&result)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate qr scan: %w", err)
	}
	return result, nil
}
