package smtp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type mockMailClient struct {
	mock.Mock
}

func (m *mockMailClient) DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error {
	args := m.Called(ctx, messages)
	return args.Error(0)
}

func TestSendRendersTemplate(t *testing.T) {
	client := new(mockMailClient)
	client.On("DialAndSendWithContext", mock.Anything, mock.MatchedBy(func(msgs []*mail.Msg) bool {
		return len(msgs) == 1
	})).Return(nil).Once()

	mailer := NewMailerWithClient(client, "noreply@fundsrail.test")

	err := mailer.Send(context.Background(), "ada@example.com", map[string]any{
		"Name":      "Ada",
		"Type":      "deposit",
		"Amount":    "100.00",
		"Asset":     "USD",
		"Status":    "processing",
		"Reference": "DEP-1",
	}, "transfer-status.tmpl")
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestSendReturnsLastError(t *testing.T) {
	client := new(mockMailClient)
	client.On("DialAndSendWithContext", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Times(3)

	mailer := NewMailerWithClient(client, "noreply@fundsrail.test")

	err := mailer.Send(context.Background(), "ada@example.com", map[string]any{"Message": "x"}, "error-notification.tmpl")
	assert.EqualError(t, err, "smtp down")
	client.AssertNumberOfCalls(t, "DialAndSendWithContext", 3)
}
