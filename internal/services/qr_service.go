package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lablink/lablink/internal/database"
	apperrors "github.com/lablink/lablink/internal/errors"
	"github.com/lablink/lablink/internal/qr"
	"github.com/lablink/lablink/internal/telemetry"
)

// QRStore is the persistence boundary the QR flows depend on. Hash
// generation and scan validation are database functions; this service
// only wraps them with the envelope codec.
type QRStore interface {
	GetItem(ctx context.Context, itemID string) (*database.Item, error)
	GenerateQRHash(ctx context.Context, item *database.Item, metadata map[string]interface{}) (string, error)
	UpdateItemQR(ctx context.Context, itemID, qrHash string, qrPayload map[string]interface{}) error
	ValidateQRScan(ctx context.Context, qrPayload string, userID, ip, userAgent *string) (json.RawMessage, error)
}

// QRService signs QR payloads for items and validates scanned ones.
type QRService struct {
	store QRStore
	now   func() time.Time
}

func NewQRService(store QRStore) *QRService {
	return &QRService{store: store, now: time.Now}
}

// SignRequest asks for a QR payload for one item. Department and
// category are optional cross-checks against the stored item.
type SignRequest struct {
	ItemID       string `json:"item_id"`
	DepartmentID string `json:"department_id,omitempty"`
	CategoryID   string `json:"category_id,omitempty"`
}

// SignResponse carries the encoded payload and the envelope fields the
// caller embeds in the QR code.
type SignResponse struct {
	QRPayload    string `json:"qr_payload"`
	QRHash       string `json:"qr_hash"`
	ExpiresAt    string `json:"expires_at"`
	ItemID       string `json:"item_id"`
	DepartmentID string `json:"department_id"`
	CategoryID   string `json:"category_id"`
}

// Sign generates a signed QR payload for an item: the database
// produces the hash, the codec wraps it with item metadata and an
// expiry, and the encoded payload is persisted back on the item row.
func (s *QRService) Sign(ctx context.Context, req SignRequest) (*SignResponse, error) {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"item_id":   req.ItemID,
		"operation": "qr_sign",
	})

	if !IsUUID(req.ItemID) {
		return nil, apperrors.NewValidationError("item_id must be a valid UUID")
	}

	item, err := s.store.GetItem(ctx, req.ItemID)
	if err != nil {
		logger.WithError(err).Error("Failed to load item metadata")
		return nil, apperrors.NewDatabaseError("item lookup", err)
	}
	if item == nil {
		return nil, apperrors.NewNotFoundError("Item")
	}

	if req.DepartmentID != "" && req.DepartmentID != item.DepartmentID {
		return nil, apperrors.NewValidationError("Department mismatch for item")
	}
	if req.CategoryID != "" && req.CategoryID != item.CategoryID {
		return nil, apperrors.NewValidationError("Category mismatch for item")
	}

	// serial_number is always present so the JSON handed to the hash
	// function keeps the same shape for serial-less items.
	metadata := map[string]interface{}{
		"item_name":     item.Name,
		"generated_at":  s.now().UTC().Format(time.RFC3339),
		"serial_number": nil,
	}
	if item.SerialNumber != nil {
		metadata["serial_number"] = *item.SerialNumber
	}

	qrHash, err := s.store.GenerateQRHash(ctx, item, metadata)
	if err != nil {
		logger.WithError(err).Error("Failed to generate QR hash")
		return nil, apperrors.NewDatabaseError("generate qr hash", err)
	}

	expiresAt := qr.CalculateExpiry(s.now())
	_, encoded, err := qr.Encode(qrHash, expiresAt, map[string]interface{}{
		"item_id":       item.ID,
		"department_id": item.DepartmentID,
		"category_id":   item.CategoryID,
		"status":        item.Status,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to encode QR payload")
		return nil, apperrors.Wrap(apperrors.ErrorTypeInternal, "QR_ENCODE_ERROR", "failed to encode QR payload", err)
	}

	expiresText := expiresAt.UTC().Format(time.RFC3339)
	persisted := map[string]interface{}{
		"item_id":       item.ID,
		"department_id": item.DepartmentID,
		"category_id":   item.CategoryID,
		"status":        item.Status,
		"qr_payload":    encoded,
		"expires_at":    expiresText,
	}
	if err := s.store.UpdateItemQR(ctx, item.ID, qrHash, persisted); err != nil {
		logger.WithError(err).Error("Generated QR but failed to persist payload")
		return nil, apperrors.NewDatabaseError("persist qr payload", err)
	}

	return &SignResponse{
		QRPayload:    encoded,
		QRHash:       qrHash,
		ExpiresAt:    expiresText,
		ItemID:       item.ID,
		DepartmentID: item.DepartmentID,
		CategoryID:   item.CategoryID,
	}, nil
}

// ValidateRequest carries a scanned payload plus scan attribution.
type ValidateRequest struct {
	QRPayload string
	UserID    string
	ClientIP  string
	UserAgent string
}

// Validate delegates scan validation to the database function. Its
// result row is returned as-is; the response shape is owned by SQL.
// A validation failure reads as an invalid payload, not a server
// error.
func (s *QRService) Validate(ctx context.Context, req ValidateRequest) (json.RawMessage, error) {
	logger := telemetry.LogFromContext(ctx).WithField("operation", "qr_validate")

	if req.QRPayload == "" {
		return nil, apperrors.NewValidationError("qr_payload is required")
	}
	if req.UserID != "" && !IsUUID(req.UserID) {
		return nil, apperrors.NewValidationError("user_id must be a valid UUID")
	}

	result, err := s.store.ValidateQRScan(ctx, req.QRPayload, optional(req.UserID), optional(req.ClientIP), optional(req.UserAgent))
	if err != nil {
		logger.WithError(err).Error("QR scan validation failed")
		return nil, apperrors.NewValidationError("Unable to validate QR payload")
	}
	if result == nil {
		return json.RawMessage(`{"valid":false,"message":"Unable to validate QR payload"}`), nil
	}
	return result, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
