// Package services orchestrates the notification and QR flows between
// the HTTP layer, the database store, the preference cache, and the
// dispatch engine.
package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lablink/lablink/internal/database"
	apperrors "github.com/lablink/lablink/internal/errors"
	"github.com/lablink/lablink/internal/notify"
	"github.com/lablink/lablink/internal/telemetry"
)

// validNotificationTypes is the closed set of notification types the
// system produces. Unknown types are rejected before any channel work.
var validNotificationTypes = map[string]struct{}{
	"approval":              {},
	"rejection":             {},
	"reminder_2days":        {},
	"reminder_due":          {},
	"reminder_overdue":      {},
	"low_stock":             {},
	"expiry_warning":        {},
	"damage_reported":       {},
	"maintenance_assigned":  {},
	"maintenance_completed": {},
}

// NotificationStore is the persistence boundary the notification flow
// depends on.
type NotificationStore interface {
	GetUser(ctx context.Context, userID string) (*database.User, error)
	GetNotificationPreferences(ctx context.Context, userID string) ([]notify.PreferenceRow, error)
	CreateNotification(ctx context.Context, p database.CreateNotificationParams) (string, error)
	UpdateDispatchStatus(ctx context.Context, notificationID string, result notify.DispatchResult) error
}

// PreferenceCache is the optional read-through cache for preference
// snapshots. A nil cache means every read hits the database.
type PreferenceCache interface {
	Get(ctx context.Context, userID string) ([]notify.PreferenceRow, error)
	Set(ctx context.Context, userID string, rows []notify.PreferenceRow) error
}

// Dispatcher fans a payload out across channels. Swapped for a stub in
// tests; the default is notify.Dispatch.
type Dispatcher func(ctx context.Context, channels []notify.Channel, payload notify.Payload, targets notify.ContactInfo, dc notify.DispatchContext) []notify.DispatchResult

// NotificationService runs the notify flow: validate, load user and
// preferences, filter channels, persist the notification, dispatch,
// and write back per-channel outcomes.
type NotificationService struct {
	store           NotificationStore
	prefCache       PreferenceCache
	dispatch        Dispatcher
	dispatchCtx     notify.DispatchContext
	defaultChannels []notify.Channel
	metrics         *telemetry.DispatchMetrics
}

// NewNotificationService wires the notify flow. prefCache and metrics
// may be nil.
func NewNotificationService(
	store NotificationStore,
	prefCache PreferenceCache,
	dispatchCtx notify.DispatchContext,
	defaultChannels []notify.Channel,
	metrics *telemetry.DispatchMetrics,
) *NotificationService {
	if len(defaultChannels) == 0 {
		defaultChannels = []notify.Channel{notify.ChannelInApp}
	}
	return &NotificationService{
		store:           store,
		prefCache:       prefCache,
		dispatch:        notify.Dispatch,
		dispatchCtx:     dispatchCtx,
		defaultChannels: defaultChannels,
		metrics:         metrics,
	}
}

// WithDispatcher replaces the dispatch function, used by tests.
func (s *NotificationService) WithDispatcher(d Dispatcher) *NotificationService {
	s.dispatch = d
	return s
}

// NotifyRequest is an inbound notification event.
type NotifyRequest struct {
	UserID     string                 `json:"user_id"`
	Type       string                 `json:"type"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	ActionLink string                 `json:"action_link,omitempty"`
	ActionData map[string]interface{} `json:"action_data,omitempty"`
	Priority   notify.Priority        `json:"priority,omitempty"`
	Channels   []notify.Channel       `json:"channels,omitempty"`

	// Per-request contact overrides. Push tokens are device-scoped and
	// never stored on the user row, so push delivery requires one here.
	EmailOverride string `json:"email_override,omitempty"`
	SMSOverride   string `json:"sms_override,omitempty"`
	PushToken     string `json:"push_token,omitempty"`
}

// NotifyResponse reports the created notification and the per-channel
// verdicts. Status is "sent" when every channel succeeded or was
// skipped, "partial" when at least one failed.
type NotifyResponse struct {
	NotificationID string                  `json:"notification_id"`
	Status         string                  `json:"status"`
	ChannelsSent   []notify.DispatchResult `json:"channels_sent"`
}

// Notify runs the full notification flow for one event.
func (s *NotificationService) Notify(ctx context.Context, req NotifyRequest) (*NotifyResponse, error) {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"user_id":   req.UserID,
		"type":      req.Type,
		"operation": "notify",
	})

	normalizedType, requested, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		logger.WithError(err).Error("Failed to load user profile")
		return nil, apperrors.NewDatabaseError("user lookup", err)
	}
	if user == nil {
		return nil, apperrors.NewNotFoundError("User")
	}

	preferenceRows, err := s.loadPreferences(ctx, req.UserID)
	if err != nil {
		logger.WithError(err).Error("Failed to load notification preferences")
		return nil, apperrors.NewDatabaseError("preference lookup", err)
	}

	allowed := notify.FilterChannels(requested, normalizedType, preferenceRows)
	if len(allowed) == 0 {
		// Never leave the recipient unnotified: in-app always goes out.
		allowed = []notify.Channel{notify.ChannelInApp}
	}

	priority := req.Priority
	if priority == "" {
		priority = notify.PriorityMedium
	}

	notificationID, err := s.store.CreateNotification(ctx, database.CreateNotificationParams{
		UserID:     req.UserID,
		Type:       normalizedType,
		Title:      req.Title,
		Message:    req.Message,
		ActionLink: req.ActionLink,
		Channels:   allowed,
		Priority:   priority,
		ActionData: req.ActionData,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to create notification")
		return nil, apperrors.NewDatabaseError("create notification", err)
	}

	targets := s.contactInfo(user, req)
	payload := notify.Payload{
		Title:      req.Title,
		Message:    req.Message,
		ActionLink: req.ActionLink,
		ActionData: req.ActionData,
		Priority:   priority,
	}

	start := time.Now()
	results := s.dispatch(ctx, allowed, payload, targets, s.dispatchCtx)
	s.metrics.RecordDuration(ctx, time.Since(start))
	for _, result := range results {
		s.metrics.RecordResult(ctx, string(result.Channel), string(result.Status))
	}

	s.writeBackDispatchStatus(ctx, notificationID, results, logger)

	status := "sent"
	for _, result := range results {
		if result.Status == notify.StatusFailed {
			status = "partial"
			break
		}
	}

	logger.WithFields(map[string]interface{}{
		"notification_id": notificationID,
		"status":          status,
		"channels":        len(results),
	}).Info("Notification dispatched")

	return &NotifyResponse{
		NotificationID: notificationID,
		Status:         status,
		ChannelsSent:   results,
	}, nil
}

// validateRequest checks the request shape and returns the normalized
// type and the requested channel list.
func (s *NotificationService) validateRequest(req NotifyRequest) (string, []notify.Channel, error) {
	if !IsUUID(req.UserID) {
		return "", nil, apperrors.NewValidationError("user_id is required and must be a UUID")
	}
	if req.Title == "" || req.Message == "" || req.Type == "" {
		return "", nil, apperrors.NewValidationError("type, title, and message are required")
	}

	normalizedType := strings.ToLower(strings.TrimSpace(req.Type))
	if _, ok := validNotificationTypes[normalizedType]; !ok {
		return "", nil, apperrors.NewValidationError("Unsupported notification type: " + req.Type)
	}

	if req.Priority != "" && !req.Priority.Valid() {
		return "", nil, apperrors.NewValidationError("Invalid priority: " + string(req.Priority))
	}

	requested := req.Channels
	if len(requested) == 0 {
		requested = s.defaultChannels
	}

	var invalid []string
	for _, ch := range requested {
		if !ch.Valid() {
			invalid = append(invalid, string(ch))
		}
	}
	if len(invalid) > 0 {
		return "", nil, apperrors.NewValidationError("Invalid channel(s): " + strings.Join(invalid, ", "))
	}

	// Normalizing here, before the notification row is created, keeps
	// the persisted channel list in step with what actually dispatches.
	return normalizedType, notify.NormalizeChannels(requested), nil
}

// loadPreferences reads the preference snapshot through the cache when
// one is configured. Cache failures fall back to the database; only a
// database failure is surfaced.
func (s *NotificationService) loadPreferences(ctx context.Context, userID string) ([]notify.PreferenceRow, error) {
	if s.prefCache != nil {
		if rows, err := s.prefCache.Get(ctx, userID); err == nil {
			return rows, nil
		}
	}

	rows, err := s.store.GetNotificationPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.prefCache != nil {
		if err := s.prefCache.Set(ctx, userID, rows); err != nil {
			telemetry.LogFromContext(ctx).WithError(err).Warn("Failed to cache notification preferences")
		}
	}
	return rows, nil
}

// contactInfo assembles the recipient contact record, request
// overrides taking precedence over stored user fields.
func (s *NotificationService) contactInfo(user *database.User, req NotifyRequest) notify.ContactInfo {
	contact := notify.ContactInfo{PushToken: req.PushToken}

	contact.Email = req.EmailOverride
	if contact.Email == "" && user.Email != nil {
		contact.Email = *user.Email
	}

	contact.Phone = req.SMSOverride
	if contact.Phone == "" && user.PhoneNumber != nil {
		contact.Phone = *user.PhoneNumber
	}

	if user.FullName != nil {
		contact.FullName = *user.FullName
	}
	return contact
}

// writeBackDispatchStatus reports each non-in-app verdict to the
// database. Write-back is best effort: failures are logged and never
// turn a completed dispatch into a caller-visible error.
func (s *NotificationService) writeBackDispatchStatus(ctx context.Context, notificationID string, results []notify.DispatchResult, logger *telemetry.ContextualLogger) {
	var wg sync.WaitGroup
	for _, result := range results {
		if result.Channel == notify.ChannelInApp {
			continue
		}
		wg.Add(1)
		go func(result notify.DispatchResult) {
			defer wg.Done()
			if err := s.store.UpdateDispatchStatus(ctx, notificationID, result); err != nil {
				logger.WithError(err).WithFields(map[string]interface{}{
					"notification_id": notificationID,
					"channel":         result.Channel,
				}).Error("Failed to record dispatch status")
			}
		}(result)
	}
	wg.Wait()
}

// PreferencesByType maps preference rows into the nested
// {type: {channel: enabled}} shape the preferences endpoint returns.
func PreferencesByType(rows []notify.PreferenceRow) map[string]map[notify.Channel]bool {
	result := make(map[string]map[notify.Channel]bool)
	for _, row := range rows {
		typeKey := strings.ToLower(row.NotificationType)
		if result[typeKey] == nil {
			result[typeKey] = make(map[notify.Channel]bool)
		}
		result[typeKey][row.Channel] = row.Enabled
	}
	return result
}

// GetPreferences returns the recipient's preference snapshot, read
// through the cache.
func (s *NotificationService) GetPreferences(ctx context.Context, userID string) ([]notify.PreferenceRow, error) {
	if !IsUUID(userID) {
		return nil, apperrors.NewValidationError("user_id query parameter is required and must be a UUID")
	}
	rows, err := s.loadPreferences(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("preference lookup", err)
	}
	return rows, nil
}

// IsUUID reports whether value parses as a UUID after trimming
// whitespace.
func IsUUID(value string) bool {
	_, err := uuid.Parse(strings.TrimSpace(value))
	return err == nil
}
