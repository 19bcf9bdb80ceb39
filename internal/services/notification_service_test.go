package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lablink/lablink/internal/database"
	apperrors "github.com/lablink/lablink/internal/errors"
	"github.com/lablink/lablink/internal/notify"
)

const testUserID = "8d7be301-4bfa-4f4a-a5f1-4af525b3f7a7"

type fakeStore struct {
	mu sync.Mutex

	user     *database.User
	userErr  error
	prefs    []notify.PreferenceRow
	prefsErr error

	createErr      error
	createdParams  *database.CreateNotificationParams
	notificationID string

	statusErr     error
	statusUpdates []notify.DispatchResult
	statusIDs     []string
}

func (f *fakeStore) GetUser(ctx context.Context, userID string) (*database.User, error) {
	return f.user, f.userErr
}

func (f *fakeStore) GetNotificationPreferences(ctx context.Context, userID string) ([]notify.PreferenceRow, error) {
	return f.prefs, f.prefsErr
}

func (f *fakeStore) CreateNotification(ctx context.Context, p database.CreateNotificationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.createdParams = &p
	if f.notificationID == "" {
		f.notificationID = "notif-1"
	}
	return f.notificationID, nil
}

func (f *fakeStore) UpdateDispatchStatus(ctx context.Context, notificationID string, result notify.DispatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusIDs = append(f.statusIDs, notificationID)
	f.statusUpdates = append(f.statusUpdates, result)
	return f.statusErr
}

func (f *fakeStore) recordedStatuses() []notify.DispatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.DispatchResult, len(f.statusUpdates))
	copy(out, f.statusUpdates)
	return out
}

type fakeCache struct {
	rows   []notify.PreferenceRow
	getErr error
	setErr error

	gets int
	sets int
	last []notify.PreferenceRow
}

func (f *fakeCache) Get(ctx context.Context, userID string) ([]notify.PreferenceRow, error) {
	f.gets++
	return f.rows, f.getErr
}

func (f *fakeCache) Set(ctx context.Context, userID string, rows []notify.PreferenceRow) error {
	f.sets++
	f.last = rows
	return f.setErr
}

func strptr(s string) *string { return &s }

func storedUser() *database.User {
	return &database.User{
		ID:          testUserID,
		Email:       strptr("stored@example.com"),
		PhoneNumber: strptr("+15551112222"),
		FullName:    strptr("Stored User"),
	}
}

// capturingDispatcher records the arguments it receives and returns a
// canned result set.
type capturingDispatcher struct {
	channels []notify.Channel
	payload  notify.Payload
	targets  notify.ContactInfo
	results  []notify.DispatchResult
}

func (c *capturingDispatcher) fn() Dispatcher {
	return func(ctx context.Context, channels []notify.Channel, payload notify.Payload, targets notify.ContactInfo, dc notify.DispatchContext) []notify.DispatchResult {
		c.channels = channels
		c.payload = payload
		c.targets = targets
		if c.results == nil {
			results := make([]notify.DispatchResult, len(channels))
			for i, ch := range channels {
				results[i] = notify.DispatchResult{Channel: ch, Status: notify.StatusSent}
			}
			return results
		}
		return c.results
	}
}

func newTestService(store *fakeStore, cache PreferenceCache, dispatcher *capturingDispatcher) *NotificationService {
	svc := NewNotificationService(store, cache, notify.DispatchContext{}, []notify.Channel{notify.ChannelInApp, notify.ChannelEmail}, nil)
	return svc.WithDispatcher(dispatcher.fn())
}

func validRequest() NotifyRequest {
	return NotifyRequest{
		UserID:  testUserID,
		Type:    "approval",
		Title:   "Request approved",
		Message: "Your borrow request was approved",
	}
}

func TestNotify_ValidationErrors(t *testing.T) {
	svc := newTestService(&fakeStore{user: storedUser()}, nil, &capturingDispatcher{})

	tests := []struct {
		name    string
		mutate  func(*NotifyRequest)
		message string
	}{
		{
			name:    "missing user id",
			mutate:  func(r *NotifyRequest) { r.UserID = "" },
			message: "user_id is required and must be a UUID",
		},
		{
			name:    "non uuid user id",
			mutate:  func(r *NotifyRequest) { r.UserID = "42" },
			message: "user_id is required and must be a UUID",
		},
		{
			name:    "missing title",
			mutate:  func(r *NotifyRequest) { r.Title = "" },
			message: "type, title, and message are required",
		},
		{
			name:    "unknown type",
			mutate:  func(r *NotifyRequest) { r.Type = "birthday" },
			message: "Unsupported notification type: birthday",
		},
		{
			name:    "invalid priority",
			mutate:  func(r *NotifyRequest) { r.Priority = "urgent-ish" },
			message: "Invalid priority: urgent-ish",
		},
		{
			name:    "invalid channel",
			mutate:  func(r *NotifyRequest) { r.Channels = []notify.Channel{"carrier_pigeon"} },
			message: "Invalid channel(s): carrier_pigeon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			_, err := svc.Notify(context.Background(), req)

			require.Error(t, err)
			appErr, ok := apperrors.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func TestNotify_TypeNormalizedBeforeLookup(t *testing.T) {
	store := &fakeStore{user: storedUser()}
	svc := newTestService(store, nil, &capturingDispatcher{})

	req := validRequest()
	req.Type = "  Approval "

	_, err := svc.Notify(context.Background(), req)

	require.NoError(t, err)
	require.NotNil(t, store.createdParams)
	assert.Equal(t, "approval", store.createdParams.Type)
}

func TestNotify_UnknownUserIsNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{user: nil}, nil, &capturingDispatcher{})

	_, err := svc.Notify(context.Background(), validRequest())

	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeNotFound, appErr.Type)
	assert.Equal(t, "User not found", appErr.Message)
}

func TestNotify_UserLookupFailureIsDatabaseError(t *testing.T) {
	svc := newTestService(&fakeStore{userErr: errors.New("connection reset")}, nil, &capturingDispatcher{})

	_, err := svc.Notify(context.Background(), validRequest())

	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeDatabase, appErr.Type)
}

func TestNotify_DefaultChannelsWhenRequestOmitsThem(t *testing.T) {
	store := &fakeStore{user: storedUser()}
	dispatcher := &capturingDispatcher{}
	svc := newTestService(store, nil, dispatcher)

	resp, err := svc.Notify(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, []notify.Channel{notify.ChannelInApp, notify.ChannelEmail}, dispatcher.channels)
	assert.Equal(t, "sent", resp.Status)
}

func TestNotify_InAppPersistedEvenWhenNotRequested(t *testing.T) {
	store := &fakeStore{user: storedUser()}
	dispatcher := &capturingDispatcher{}
	svc := newTestService(store, nil, dispatcher)

	req := validRequest()
	req.Channels = []notify.Channel{notify.ChannelEmail}

	_, err := svc.Notify(context.Background(), req)

	require.NoError(t, err)
	require.NotNil(t, store.createdParams)
	assert.Equal(t, []notify.Channel{notify.ChannelInApp, notify.ChannelEmail}, store.createdParams.Channels)
	// the stored list and the dispatched list agree
	assert.Equal(t, store.createdParams.Channels, dispatcher.channels)
}

func TestNotify_PreferencesFilterChannels(t *testing.T) {
	store := &fakeStore{
		user: storedUser(),
		prefs: []notify.PreferenceRow{
			{NotificationType: "approval", Channel: notify.ChannelEmail, Enabled: false},
		},
	}
	dispatcher := &capturingDispatcher{}
	svc := newTestService(store, nil, dispatcher)

	req := validRequest()
	req.Channels = []notify.Channel{notify.ChannelInApp, notify.ChannelEmail, notify.ChannelSMS}

	_, err := svc.Notify(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, []notify.Channel{notify.ChannelInApp, notify.ChannelSMS}, dispatcher.channels)
	require.NotNil(t, store.createdParams)
	assert.Equal(t, []notify.Channel{notify.ChannelInApp, notify.ChannelSMS}, store.createdParams.Channels)
}

func TestNotify_AllChannelsOptedOutFallsBackToInApp(t *testing.T) {
	store := &fakeStore{
		user: storedUser(),
		prefs: []notify.PreferenceRow{
			{NotificationType: "approval", Channel: notify.ChannelEmail, Enabled: false},
			{NotificationType: "approval", Channel: notify.ChannelSMS, Enabled: false},
		},
	}
	dispatcher := &capturingDispatcher{}
	svc := NewNotificationService(store, nil, notify.DispatchContext{}, []notify.Channel{notify.ChannelEmail, notify.ChannelSMS}, nil).
		WithDispatcher(dispatcher.fn())

	resp, err := svc.Notify(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, []notify.Channel{notify.ChannelInApp}, dispatcher.channels)
	assert.Equal(t, "sent", resp.Status)
}

func TestNotify_PriorityDefaultsToMedium(t *testing.T) {
	store := &fakeStore{user: storedUser()}
	dispatcher := &capturingDispatcher{}
	svc := newTestService(store, nil, dispatcher)

	_, err := svc.Notify(context.Background(), validRequest())

	require.NoError(t, err)
	require.NotNil(t, store.createdParams)
	assert.Equal(t, notify.PriorityMedium, store.createdParams.Priority)
	assert.Equal(t, notify.PriorityMedium, dispatcher.payload.Priority)
}

func TestNotify_ContactOverridesBeatStoredFields(t *testing.T) {
	store := &fakeStore{user: storedUser()}
	dispatcher := &capturingDispatcher{}
	svc := newTestService(store, nil, dispatcher)

	req := validRequest()
	req.EmailOverride = "override@example.com"
	req.PushToken = "device-token"

	_, err := svc.Notify(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, notify.ContactInfo{
		Email:     "override@example.com",
		Phone:     "+15551112222",
		PushToken: "device-token",
		FullName:  "Stored User",
	}, dispatcher.targets)
}

func TestNotify_PartialStatusOnChannelFailure(t *testing.T) {
	store := &fakeStore{user: storedUser()}
	dispatcher := &capturingDispatcher{
		results: []notify.DispatchResult{
			{Channel: notify.ChannelInApp, Status: notify.StatusSent},
			{Channel: notify.ChannelEmail, Status: notify.StatusFailed, Detail: "SendGrid 500"},
		},
	}
	svc := newTestService(store, nil, dispatcher)

	resp, err := svc.Notify(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, "partial", resp.Status)
	assert.Equal(t, dispatcher.results, resp.ChannelsSent)
}

func TestNotify_SkippedChannelsDoNotDegradeStatus(t *testing.T) {
	store := &fakeStore{user: storedUser()}
	dispatcher := &capturingDispatcher{
		results: []notify.DispatchResult{
			{Channel: notify.ChannelInApp, Status: notify.StatusSent},
			{Channel: notify.ChannelEmail, Status: notify.StatusSkipped, Detail: "Email channel not configured"},
		},
	}
	svc := newTestService(store, nil, dispatcher)

	resp, err := svc.Notify(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, "sent", resp.Status)
}

func TestNotify_WriteBackSkipsInApp(t *testing.T) {
	store := &fakeStore{user: storedUser(), notificationID: "notif-42"}
	dispatcher := &capturingDispatcher{
		results: []notify.DispatchResult{
			{Channel: notify.ChannelInApp, Status: notify.StatusSent},
			{Channel: notify.ChannelEmail, Status: notify.StatusSent},
			{Channel: notify.ChannelSMS, Status: notify.StatusFailed, Detail: "Twilio 500"},
		},
	}
	svc := newTestService(store, nil, dispatcher)

	_, err := svc.Notify(context.Background(), validRequest())

	require.NoError(t, err)
	statuses := store.recordedStatuses()
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.NotEqual(t, notify.ChannelInApp, s.Channel)
	}
	assert.Equal(t, []string{"notif-42", "notif-42"}, store.statusIDs)
}

func TestNotify_WriteBackFailureDoesNotSurface(t *testing.T) {
	store := &fakeStore{user: storedUser(), statusErr: errors.New("deadlock detected")}
	dispatcher := &capturingDispatcher{
		results: []notify.DispatchResult{
			{Channel: notify.ChannelEmail, Status: notify.StatusSent},
		},
	}
	svc := newTestService(store, nil, dispatcher)

	resp, err := svc.Notify(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, "sent", resp.Status)
}

func TestNotify_CreateNotificationFailureSurfaces(t *testing.T) {
	store := &fakeStore{user: storedUser(), createErr: errors.New("insert failed")}
	svc := newTestService(store, nil, &capturingDispatcher{})

	_, err := svc.Notify(context.Background(), validRequest())

	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeDatabase, appErr.Type)
}

func TestLoadPreferences_CacheHitSkipsStore(t *testing.T) {
	cached := []notify.PreferenceRow{
		{NotificationType: "approval", Channel: notify.ChannelSMS, Enabled: false},
	}
	store := &fakeStore{user: storedUser(), prefsErr: errors.New("store must not be hit")}
	cache := &fakeCache{rows: cached}
	dispatcher := &capturingDispatcher{}
	svc := newTestService(store, cache, dispatcher)

	req := validRequest()
	req.Channels = []notify.Channel{notify.ChannelInApp, notify.ChannelSMS}

	_, err := svc.Notify(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 1, cache.gets)
	assert.Zero(t, cache.sets)
	assert.Equal(t, []notify.Channel{notify.ChannelInApp}, dispatcher.channels)
}

func TestLoadPreferences_CacheMissFallsThroughAndPopulates(t *testing.T) {
	rows := []notify.PreferenceRow{
		{NotificationType: "approval", Channel: notify.ChannelEmail, Enabled: true},
	}
	store := &fakeStore{user: storedUser(), prefs: rows}
	cache := &fakeCache{getErr: errors.New("cache miss")}
	svc := newTestService(store, cache, &capturingDispatcher{})

	_, err := svc.Notify(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, rows, cache.last)
}

func TestGetPreferences(t *testing.T) {
	rows := []notify.PreferenceRow{
		{NotificationType: "low_stock", Channel: notify.ChannelEmail, Enabled: false},
	}
	svc := newTestService(&fakeStore{prefs: rows}, nil, &capturingDispatcher{})

	got, err := svc.GetPreferences(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	_, err = svc.GetPreferences(context.Background(), "not-a-uuid")
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
}

func TestPreferencesByType(t *testing.T) {
	rows := []notify.PreferenceRow{
		{NotificationType: "Approval", Channel: notify.ChannelEmail, Enabled: true},
		{NotificationType: "approval", Channel: notify.ChannelSMS, Enabled: false},
		{NotificationType: "low_stock", Channel: notify.ChannelPush, Enabled: true},
	}

	got := PreferencesByType(rows)

	assert.Equal(t, map[string]map[notify.Channel]bool{
		"approval": {
			notify.ChannelEmail: true,
			notify.ChannelSMS:   false,
		},
		"low_stock": {
			notify.ChannelPush: true,
		},
	}, got)
}

func TestIsUUID(t *testing.T) {
	assert.True(t, IsUUID(testUserID))
	assert.True(t, IsUUID("  "+testUserID+"  "))
	assert.False(t, IsUUID(""))
	assert.False(t, IsUUID("not-a-uuid"))
}
