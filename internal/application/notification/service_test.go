package notification

import (
	"context"
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

func (m *mockRecordStore) Put(ctx context.Context, n *domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockRecordStore) Get(ctx context.Context, tenantID, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, tenantID, notificationID)
	n, _ := args.Get(0).(*domain.Notification)
	return n, args.Error(1)
}

func (m *mockRecordStore) Transition(ctx context.Context, tenantID, notificationID string, from []domain.Status, to domain.Status, details []domain.ProviderReport, failReason string) error {
	return m.Called(ctx, tenantID, notificationID, from, to, details, failReason).Error(0)
}

func (m *mockRecordStore) MarkRead(ctx context.Context, tenantID, userID, notificationID string) (bool, error) {
	args := m.Called(ctx, tenantID, userID, notificationID)
	return args.Bool(0), args.Error(1)
}

func (m *mockRecordStore) RecordClick(ctx context.Context, tenantID, userID, notificationID string) (bool, error) {
	args := m.Called(ctx, tenantID, userID, notificationID)
	return args.Bool(0), args.Error(1)
}

func (m *mockRecordStore) ListByUser(ctx context.Context, tenantID, userID string, q domain.ListNotificationsQuery) ([]domain.Notification, string, error) {
	args := m.Called(ctx, tenantID, userID, q)
	items, _ := args.Get(0).([]domain.Notification)
	return items, args.String(1), args.Error(2)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo recordStore, now time.Time) *service {
	return &service{
		repo:   repo,
		logger: testLogger(),
		now:    func() time.Time { return now },
	}
}

func validCreateRequest() domain.CreateNotificationRequest {
	return domain.CreateNotificationRequest{
		TenantID: "t1",
		UserID:   "u1",
		Type:     "order.shipped",
		Category: domain.CategoryOrder,
		Title:    "Order shipped",
		Body:     "Your order is on the way",
	}
}

func TestCreate_ImmediateStartsAsDraft(t *testing.T) {
	repo := new(mockRecordStore)
	repo.On("Put", mock.Anything,
		mock.MatchedBy(func(n *domain.Notification) bool {
			return n.Status == domain.StatusDraft && n.NotificationID != "" && n.Priority == domain.PriorityNormal
		})).Return(nil)

	svc := newTestService(repo, time.Now().UTC())
	n, err := svc.Create(context.Background(), validCreateRequest())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, n.Status)
	repo.AssertExpectations(t)
}

func TestCreate_FutureScheduleStartsAsScheduled(t *testing.T) {
	now := time.Now().UTC()
	repo := new(mockRecordStore)
	repo.On("Put", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.Status == domain.StatusScheduled
	})).Return(nil)

	svc := newTestService(repo, now)
	req := validCreateRequest()
	at := now.Add(time.Hour)
	req.ScheduledAt = &at

	n, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, n.Status)
}

func TestCreate_PastScheduleRejected(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(new(mockRecordStore), now)

	req := validCreateRequest()
	at := now.Add(-time.Minute)
	req.ScheduledAt = &at

	_, err := svc.Create(context.Background(), req)

	var schedErr *domain.InvalidScheduleError
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, at.Truncate(time.Second), schedErr.ScheduledAt)
}

func TestCreate_ScheduleTimestampsStoredAtSecondPrecision(t *testing.T) {
	now := time.Now().UTC()
	repo := new(mockRecordStore)
	repo.On("Put", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.ScheduledAt.Nanosecond() == 0 && n.ExpiresAt.Nanosecond() == 0
	})).Return(nil)

	svc := newTestService(repo, now)
	req := validCreateRequest()
	scheduledAt := now.Add(time.Hour).Add(123456789 * time.Nanosecond)
	expiresAt := now.Add(2 * time.Hour).Add(987654321 * time.Nanosecond)
	req.ScheduledAt = &scheduledAt
	req.ExpiresAt = &expiresAt

	_, err := svc.Create(context.Background(), req)

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCreate_UserAndRecipientsExclusive(t *testing.T) {
	svc := newTestService(new(mockRecordStore), time.Now().UTC())

	req := validCreateRequest()
	req.Recipients = []string{"u2", "u3"}

	_, err := svc.Create(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestCreate_NoRecipientRejected(t *testing.T) {
	svc := newTestService(new(mockRecordStore), time.Now().UTC())

	req := validCreateRequest()
	req.UserID = ""

	_, err := svc.Create(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestTransition_IllegalEdgeReturnsTypedError(t *testing.T) {
	repo := new(mockRecordStore)
	repo.On("Get", mock.Anything, "t1", "n1").
		Return(&domain.Notification{NotificationID: "n1", Status: domain.StatusSent}, nil)

	svc := newTestService(repo, time.Now().UTC())
	err := svc.Transition(context.Background(), "t1", "n1", domain.StatusDraft)

	var transErr *domain.StateTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, domain.StatusSent, transErr.From)
	assert.Equal(t, domain.StatusDraft, transErr.To)
}

func TestTransition_LegalEdgeDelegates(t *testing.T) {
	repo := new(mockRecordStore)
	repo.On("Get", mock.Anything, "t1", "n1").
		Return(&domain.Notification{NotificationID: "n1", Status: domain.StatusDraft}, nil)
	repo.On("Transition", mock.Anything, "t1", "n1",
		[]domain.Status{domain.StatusDraft}, domain.StatusScheduled,
		mock.Anything, "").Return(nil)

	svc := newTestService(repo, time.Now().UTC())
	err := svc.Transition(context.Background(), "t1", "n1", domain.StatusScheduled)

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func sentNotificationFor(userID string) *domain.Notification {
	return &domain.Notification{
		NotificationID: "n1",
		TenantID:       "t1",
		UserID:         userID,
		Status:         domain.StatusSent,
	}
}

func TestRecordInteraction_ReadIsIdempotent(t *testing.T) {
	repo := new(mockRecordStore)
	repo.On("Get", mock.Anything, "t1", "n1").Return(sentNotificationFor("u1"), nil)
	repo.On("MarkRead", mock.Anything, "t1", "u1", "n1").Return(false, nil)

	svc := newTestService(repo, time.Now().UTC())
	err := svc.RecordInteraction(context.Background(), "t1", "u1", "n1", domain.InteractionRead)

	require.NoError(t, err)
}

func TestRecordInteraction_ClickNotFound(t *testing.T) {
	repo := new(mockRecordStore)
	repo.On("Get", mock.Anything, "t1", "n1").Return(sentNotificationFor("u1"), nil)
	repo.On("RecordClick", mock.Anything, "t1", "u1", "n1").Return(false, nil)

	svc := newTestService(repo, time.Now().UTC())
	err := svc.RecordInteraction(context.Background(), "t1", "u1", "n1", domain.InteractionClick)

	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordInteraction_NonRecipientGetsNotFound(t *testing.T) {
	repo := new(mockRecordStore)
	repo.On("Get", mock.Anything, "t1", "n1").Return(sentNotificationFor("u1"), nil)

	svc := newTestService(repo, time.Now().UTC())
	err := svc.RecordInteraction(context.Background(), "t1", "intruder", "n1", domain.InteractionRead)

	require.ErrorIs(t, err, domain.ErrNotFound)
	repo.AssertNotCalled(t, "MarkRead",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordInteraction_UnknownKind(t *testing.T) {
	svc := newTestService(new(mockRecordStore), time.Now().UTC())

	err := svc.RecordInteraction(context.Background(), "t1", "u1", "n1", "wave")
	require.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestGet_NonRecipientGetsNotFound(t *testing.T) {
	repo := new(mockRecordStore)
	n := sentNotificationFor("")
	n.Recipients = []string{"u1", "u2"}
	repo.On("Get", mock.Anything, "t1", "n1").Return(n, nil)

	svc := newTestService(repo, time.Now().UTC())

	_, err := svc.Get(context.Background(), "t1", "u3", "n1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := svc.Get(context.Background(), "t1", "u2", "n1")
	require.NoError(t, err)
	assert.Equal(t, "n1", got.NotificationID)
}

func TestList_RejectsUnknownCategory(t *testing.T) {
	svc := newTestService(new(mockRecordStore), time.Now().UTC())

	_, _, err := svc.List(context.Background(), "t1", "u1", domain.ListNotificationsQuery{Category: "nope"})
	require.ErrorIs(t, err, domain.ErrBadRequest)
}
