package fcm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/go-push-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMessagingClient struct{ mock.Mock }

func (m *mockMessagingClient) SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	args := m.Called(ctx, msg)
	if br, _ := args.Get(0).(*messaging.BatchResponse); br != nil {
		return br, args.Error(1)
	}
	return nil, args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTokens(addrs ...string) []domain.DeviceToken {
	tokens := make([]domain.DeviceToken, len(addrs))
	for i, a := range addrs {
		tokens[i] = domain.DeviceToken{Token: a, Channel: domain.ChannelFCM}
	}
	return tokens
}

func TestSend_AllAccepted(t *testing.T) {
	client := &mockMessagingClient{}
	client.On("SendEachForMulticast", mock.Anything, mock.Anything).Return(&messaging.BatchResponse{
		SuccessCount: 2,
		Responses: []*messaging.SendResponse{
			{Success: true, MessageID: "m1"},
			{Success: true, MessageID: "m2"},
		},
	}, nil)

	adapter := NewAdapter(client, time.Second, testLogger())
	n := &domain.Notification{NotificationID: "n1", Title: "hi", Body: "there"}

	result, err := adapter.Send(context.Background(), n, testTokens("t1", "t2"))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Accepted)
	assert.Equal(t, 0, result.Rejected)
	assert.Empty(t, result.Rejections)
	client.AssertExpectations(t)
}

func TestSend_TransportFailure_AllTransient(t *testing.T) {
	client := &mockMessagingClient{}
	client.On("SendEachForMulticast", mock.Anything, mock.Anything).Return(nil, errors.New("network down"))

	adapter := NewAdapter(client, time.Second, testLogger())
	n := &domain.Notification{NotificationID: "n1"}

	result, err := adapter.Send(context.Background(), n, testTokens("t1", "t2"))

	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Accepted)
	assert.Equal(t, 2, result.Rejected)
	for _, rej := range result.Rejections {
		assert.False(t, rej.Permanent)
	}
}

func TestSend_BuildsDataAndPriority(t *testing.T) {
	client := &mockMessagingClient{}
	var captured *messaging.MulticastMessage
	client.On("SendEachForMulticast", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*messaging.MulticastMessage)
		}).
		Return(&messaging.BatchResponse{SuccessCount: 1, Responses: []*messaging.SendResponse{{Success: true}}}, nil)

	adapter := NewAdapter(client, time.Second, testLogger())
	n := &domain.Notification{
		NotificationID: "n1",
		Title:          "Order shipped",
		Body:           "On its way",
		Priority:       domain.PriorityUrgent,
		ActionURL:      "app://orders/42",
		Data:           map[string]string{"order_id": "42"},
	}

	_, err := adapter.Send(context.Background(), n, testTokens("t1"))

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, "high", captured.Android.Priority)
	assert.Equal(t, "42", captured.Data["order_id"])
	assert.Equal(t, "app://orders/42", captured.Data["action_url"])
	assert.Equal(t, "n1", captured.Data["notification_id"])
}

func TestSend_EmptyTokens_NoProviderCall(t *testing.T) {
	client := &mockMessagingClient{}
	adapter := NewAdapter(client, time.Second, testLogger())

	result, err := adapter.Send(context.Background(), &domain.Notification{}, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Accepted)
	client.AssertNotCalled(t, "SendEachForMulticast", mock.Anything, mock.Anything)
}
