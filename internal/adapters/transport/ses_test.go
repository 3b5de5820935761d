package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/adapters/mimeutil"
	"github.com/PetrosWatts/regdeadline/internal/core"
)

type mockSES struct {
	mock.Mock
}

func (m *mockSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*sesv2.SendEmailOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSESSenderSendsRawMessage(t *testing.T) {
	client := new(mockSES)
	creds := credentials.NewStaticCredentialsProvider("AKID", "SECRET", "")
	sender := NewSESSenderFromClient(client, creds, zap.NewNop())

	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		if aws.ToString(in.FromEmailAddress) != "hello@regdeadline.co.uk" {
			return false
		}
		if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "client@example.com" {
			return false
		}
		email, err := mimeutil.Parse(in.Content.Raw.Data)
		return err == nil && email.Subject == "Confirmation statement due"
	})).Return(&sesv2.SendEmailOutput{MessageId: aws.String("abc")}, nil).Once()

	require.NoError(t, sender.Send(context.Background(), testMessage()))
	client.AssertExpectations(t)
}

func TestSESSenderTransportError(t *testing.T) {
	client := new(mockSES)
	creds := credentials.NewStaticCredentialsProvider("AKID", "SECRET", "")
	sender := NewSESSenderFromClient(client, creds, zap.NewNop())

	client.On("SendEmail", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()

	err := sender.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrMissingCredentials)
}

func TestSESSenderMissingCredentials(t *testing.T) {
	client := new(mockSES)

	sender := NewSESSenderFromClient(client, nil, zap.NewNop())
	assert.ErrorIs(t, sender.Send(context.Background(), testMessage()), core.ErrMissingCredentials)

	empty := credentials.NewStaticCredentialsProvider("", "", "")
	sender = NewSESSenderFromClient(client, empty, zap.NewNop())
	assert.ErrorIs(t, sender.Send(context.Background(), testMessage()), core.ErrMissingCredentials)

	client.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}
