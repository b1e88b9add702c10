package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/go-push-engine/internal/domain"
)

type mockRecordStore struct {
	mock.Mock
}

func (m *mockRecordStore) Get(ctx context.Context, tenantID, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, tenantID, notificationID)
	n, _ := args.Get(0).(*domain.Notification)
	return n, args.Error(1)
}

func (m *mockRecordStore) BeginSending(ctx context.Context, tenantID, notificationID string) (bool, error) {
	args := m.Called(ctx, tenantID, notificationID)
	return args.Bool(0), args.Error(1)
}

func (m *mockRecordStore) Transition(ctx context.Context, tenantID, notificationID string, from []domain.Status, to domain.Status, details []domain.ProviderReport, failReason string) error {
	return m.Called(ctx, tenantID, notificationID, from, to, details, failReason).Error(0)
}

type mockTokenSource struct {
	mock.Mock
}

func (m *mockTokenSource) ListActiveFor(ctx context.Context, tenantID, userID string, criteria domain.TokenCriteria) ([]domain.DeviceToken, error) {
	args := m.Called(ctx, tenantID, userID, criteria)
	tokens, _ := args.Get(0).([]domain.DeviceToken)
	return tokens, args.Error(1)
}

func (m *mockTokenSource) MarkInvalid(ctx context.Context, tenantID, token string) error {
	return m.Called(ctx, tenantID, token).Error(0)
}

type mockAdapter struct {
	mock.Mock
	channel domain.Channel
}

func (m *mockAdapter) Channel() domain.Channel {
	return m.channel
}

func (m *mockAdapter) Send(ctx context.Context, n *domain.Notification, tokens []domain.DeviceToken) (*domain.DispatchResult, error) {
	args := m.Called(ctx, n, tokens)
	result, _ := args.Get(0).(*domain.DispatchResult)
	return result, args.Error(1)
}

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Archive(ctx context.Context, n *domain.Notification) (string, error) {
	args := m.Called(ctx, n)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(records recordStore, tokens tokenSource, adapters []Adapter, archive Archiver) *service {
	byChannel := map[domain.Channel]Adapter{}
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}
	return &service{
		records:  records,
		tokens:   tokens,
		adapters: byChannel,
		archive:  archive,
		timeout:  time.Second,
		logger:   testLogger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func draftOrderNotification() *domain.Notification {
	return &domain.Notification{
		NotificationID: "n1",
		TenantID:       "t1",
		UserID:         "u1",
		Category:       domain.CategoryOrder,
		Status:         domain.StatusDraft,
		Title:          "Order shipped",
		Body:           "On the way",
	}
}

func fcmToken(value string) domain.DeviceToken {
	return domain.DeviceToken{Token: value, Channel: domain.ChannelFCM, Active: true, Enabled: true}
}

func TestDispatch_SentWhenAnyProviderAccepts(t *testing.T) {
	records := new(mockRecordStore)
	tokens := new(mockTokenSource)
	fcm := &mockAdapter{channel: domain.ChannelFCM}
	onesignal := &mockAdapter{channel: domain.ChannelOneSignal}

	records.On("Get", mock.Anything, "t1", "n1").Return(draftOrderNotification(), nil)
	records.On("BeginSending", mock.Anything, "t1", "n1").Return(true, nil)
	tokens.On("ListActiveFor", mock.Anything, "t1", "u1",
		domain.TokenCriteria{Category: domain.CategoryOrder}).Return([]domain.DeviceToken{
		fcmToken("a"),
		{Token: "b", Channel: domain.ChannelOneSignal, Active: true, Enabled: true},
	}, nil)

	// fcm accepts, onesignal rejects everything transiently with an error.
	fcm.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.DispatchResult{Provider: domain.ChannelFCM, Accepted: 1}, nil)
	onesignal.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.DispatchResult{
			Provider: domain.ChannelOneSignal,
			Rejected: 1,
			Rejections: []domain.Rejection{{Token: "b", Reason: "timeout", Permanent: false}},
		}, errors.New("onesignal transport: timeout"))

	records.On("Transition", mock.Anything, "t1", "n1",
		[]domain.Status{domain.StatusSending}, domain.StatusSent,
		mock.Anything, "").Return(nil)

	svc := newTestService(records, tokens, []Adapter{fcm, onesignal}, nil)
	outcome, err := svc.Dispatch(context.Background(), "t1", "n1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, outcome.Status)
	assert.Equal(t, 1, outcome.Accepted)
	assert.Equal(t, 1, outcome.Rejected)
	require.Len(t, outcome.Providers, 2)
	records.AssertExpectations(t)
}

func TestDispatch_NoEligibleDeviceFails(t *testing.T) {
	records := new(mockRecordStore)
	tokens := new(mockTokenSource)

	records.On("Get", mock.Anything, "t1", "n1").Return(draftOrderNotification(), nil)
	records.On("BeginSending", mock.Anything, "t1", "n1").Return(true, nil)
	tokens.On("ListActiveFor", mock.Anything, "t1", "u1", mock.Anything).
		Return([]domain.DeviceToken{}, nil)
	records.On("Transition", mock.Anything, "t1", "n1",
		[]domain.Status{domain.StatusSending}, domain.StatusFailed,
		mock.Anything, "no eligible device").Return(nil)

	svc := newTestService(records, tokens, nil, nil)
	outcome, err := svc.Dispatch(context.Background(), "t1", "n1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, outcome.Status)
	assert.Equal(t, "no eligible device", outcome.Reason)
	records.AssertExpectations(t)
}

func TestDispatch_LostClaimIsSkip(t *testing.T) {
	records := new(mockRecordStore)
	tokens := new(mockTokenSource)

	records.On("Get", mock.Anything, "t1", "n1").Return(draftOrderNotification(), nil)
	records.On("BeginSending", mock.Anything, "t1", "n1").Return(false, nil)

	svc := newTestService(records, tokens, nil, nil)
	outcome, err := svc.Dispatch(context.Background(), "t1", "n1")

	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	tokens.AssertNotCalled(t, "ListActiveFor", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	records.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_PermanentRejectionInvalidatesToken(t *testing.T) {
	records := new(mockRecordStore)
	tokens := new(mockTokenSource)
	fcm := &mockAdapter{channel: domain.ChannelFCM}

	records.On("Get", mock.Anything, "t1", "n1").Return(draftOrderNotification(), nil)
	records.On("BeginSending", mock.Anything, "t1", "n1").Return(true, nil)
	tokens.On("ListActiveFor", mock.Anything, "t1", "u1", mock.Anything).
		Return([]domain.DeviceToken{fcmToken("dead"), fcmToken("alive")}, nil)

	fcm.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.DispatchResult{
			Provider: domain.ChannelFCM,
			Accepted: 1,
			Rejected: 1,
			Rejections: []domain.Rejection{{Token: "dead", Reason: "unregistered", Permanent: true}},
		}, nil)
	tokens.On("MarkInvalid", mock.Anything, "t1", "dead").Return(nil)
	records.On("Transition", mock.Anything, "t1", "n1",
		[]domain.Status{domain.StatusSending}, domain.StatusSent,
		mock.Anything, "").Return(nil)

	svc := newTestService(records, tokens, []Adapter{fcm}, nil)
	outcome, err := svc.Dispatch(context.Background(), "t1", "n1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, outcome.Status)
	tokens.AssertCalled(t, "MarkInvalid", mock.Anything, "t1", "dead")
}

func TestDispatch_AllRejectedFails(t *testing.T) {
	records := new(mockRecordStore)
	tokens := new(mockTokenSource)
	fcm := &mockAdapter{channel: domain.ChannelFCM}

	records.On("Get", mock.Anything, "t1", "n1").Return(draftOrderNotification(), nil)
	records.On("BeginSending", mock.Anything, "t1", "n1").Return(true, nil)
	tokens.On("ListActiveFor", mock.Anything, "t1", "u1", mock.Anything).
		Return([]domain.DeviceToken{fcmToken("a")}, nil)
	fcm.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.DispatchResult{
			Provider: domain.ChannelFCM,
			Rejected: 1,
			Rejections: []domain.Rejection{{Token: "a", Reason: "unavailable", Permanent: false}},
		}, errors.New("fcm send: unavailable"))
	records.On("Transition", mock.Anything, "t1", "n1",
		[]domain.Status{domain.StatusSending}, domain.StatusFailed,
		mock.Anything, "all providers rejected").Return(nil)

	svc := newTestService(records, tokens, []Adapter{fcm}, nil)
	outcome, err := svc.Dispatch(context.Background(), "t1", "n1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, outcome.Status)
	require.Len(t, outcome.Providers, 1)
	assert.Contains(t, outcome.Providers[0].Error, "unavailable")
}

func TestDispatch_ExpiredScheduledRecord(t *testing.T) {
	records := new(mockRecordStore)

	past := time.Now().UTC().Add(-time.Hour)
	n := draftOrderNotification()
	n.Status = domain.StatusScheduled
	n.ExpiresAt = &past

	records.On("Get", mock.Anything, "t1", "n1").Return(n, nil)
	records.On("Transition", mock.Anything, "t1", "n1",
		[]domain.Status{domain.StatusScheduled}, domain.StatusExpired,
		mock.Anything, "").Return(nil)

	svc := newTestService(records, new(mockTokenSource), nil, nil)
	outcome, err := svc.Dispatch(context.Background(), "t1", "n1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, outcome.Status)
	assert.True(t, outcome.Skipped)
	records.AssertNotCalled(t, "BeginSending", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_ExpiredDraftKeepsStoredStatus(t *testing.T) {
	records := new(mockRecordStore)

	past := time.Now().UTC().Add(-time.Hour)
	n := draftOrderNotification()
	n.ExpiresAt = &past

	records.On("Get", mock.Anything, "t1", "n1").Return(n, nil)

	svc := newTestService(records, new(mockTokenSource), nil, nil)
	outcome, err := svc.Dispatch(context.Background(), "t1", "n1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, outcome.Status)
	assert.True(t, outcome.Skipped)
	records.AssertNotCalled(t, "Transition",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_TokenLookupFailureReturnsFailedOutcome(t *testing.T) {
	records := new(mockRecordStore)
	tokens := new(mockTokenSource)

	records.On("Get", mock.Anything, "t1", "n1").Return(draftOrderNotification(), nil)
	records.On("BeginSending", mock.Anything, "t1", "n1").Return(true, nil)
	tokens.On("ListActiveFor", mock.Anything, "t1", "u1", mock.Anything).
		Return(nil, errors.New("redis unavailable"))
	records.On("Transition", mock.Anything, "t1", "n1",
		[]domain.Status{domain.StatusSending}, domain.StatusFailed,
		mock.Anything, "token lookup: redis unavailable").Return(nil)

	svc := newTestService(records, tokens, nil, nil)
	outcome, err := svc.Dispatch(context.Background(), "t1", "n1")

	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, domain.StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "token lookup")
	records.AssertExpectations(t)
}

func TestDispatch_ArchiveFailureDoesNotFailDispatch(t *testing.T) {
	records := new(mockRecordStore)
	tokens := new(mockTokenSource)
	fcm := &mockAdapter{channel: domain.ChannelFCM}
	archive := new(mockArchiver)

	records.On("Get", mock.Anything, "t1", "n1").Return(draftOrderNotification(), nil)
	records.On("BeginSending", mock.Anything, "t1", "n1").Return(true, nil)
	tokens.On("ListActiveFor", mock.Anything, "t1", "u1", mock.Anything).
		Return([]domain.DeviceToken{fcmToken("a")}, nil)
	fcm.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.DispatchResult{Provider: domain.ChannelFCM, Accepted: 1}, nil)
	records.On("Transition", mock.Anything, "t1", "n1",
		[]domain.Status{domain.StatusSending}, domain.StatusSent,
		mock.Anything, "").Return(nil)
	archive.On("Archive", mock.Anything, mock.Anything).Return("", errors.New("s3 down"))

	svc := newTestService(records, tokens, []Adapter{fcm}, archive)
	outcome, err := svc.Dispatch(context.Background(), "t1", "n1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, outcome.Status)
	archive.AssertExpectations(t)
}

func TestDispatch_BatchRowFansOutPerRecipient(t *testing.T) {
	records := new(mockRecordStore)
	tokens := new(mockTokenSource)
	fcm := &mockAdapter{channel: domain.ChannelFCM}

	n := draftOrderNotification()
	n.UserID = ""
	n.Recipients = []string{"u1", "u2"}

	records.On("Get", mock.Anything, "t1", "n1").Return(n, nil)
	records.On("BeginSending", mock.Anything, "t1", "n1").Return(true, nil)
	tokens.On("ListActiveFor", mock.Anything, "t1", "u1", mock.Anything).
		Return([]domain.DeviceToken{fcmToken("a")}, nil)
	tokens.On("ListActiveFor", mock.Anything, "t1", "u2", mock.Anything).
		Return([]domain.DeviceToken{fcmToken("b")}, nil)
	fcm.On("Send", mock.Anything, mock.Anything, mock.MatchedBy(func(batch []domain.DeviceToken) bool {
		return len(batch) == 2
	})).Return(&domain.DispatchResult{Provider: domain.ChannelFCM, Accepted: 2}, nil)
	records.On("Transition", mock.Anything, "t1", "n1",
		[]domain.Status{domain.StatusSending}, domain.StatusSent,
		mock.Anything, "").Return(nil)

	svc := newTestService(records, tokens, []Adapter{fcm}, nil)
	outcome, err := svc.Dispatch(context.Background(), "t1", "n1")

	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Accepted)
	fcm.AssertExpectations(t)
}
