// internal/provider/email_test.go
package provider

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/models"
)

// ==========================
// Mocks
// ==========================

type mockSESService struct {
	sendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *mockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.sendEmailFunc(ctx, params, optFns...)
}

// ==========================
// Validate Tests
// ==========================

func TestEmailProvider_Validate(t *testing.T) {
	p := NewEmailProvider(&mockSESService{}, "noreply@acme.io", testLogger)

	valid := testNotification(models.ChannelEmail, "user@example.com")
	assert.NoError(t, p.Validate(valid))

	badAddress := testNotification(models.ChannelEmail, "not-an-email")
	err := p.Validate(badAddress)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))

	noSubject := testNotification(models.ChannelEmail, "user@example.com")
	noSubject.Subject = ""
	assert.Error(t, p.Validate(noSubject))

	noBody := testNotification(models.ChannelEmail, "user@example.com")
	noBody.Content = ""
	noBody.HTMLContent = ""
	assert.Error(t, p.Validate(noBody))
}

// ==========================
// Send Tests
// ==========================

func TestEmailProvider_Send_Success(t *testing.T) {
	var captured *ses.SendEmailInput
	mock := &mockSESService{
		sendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			captured = params
			return &ses.SendEmailOutput{MessageId: aws.String("ses-msg-42")}, nil
		},
	}
	p := NewEmailProvider(mock, "noreply@acme.io", testLogger)

	n := testNotification(models.ChannelEmail, "user@example.com")
	n.HTMLContent = "<p>Hello there</p>"

	result, err := p.Send(context.Background(), n)
	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ses-msg-42", result.ExternalID)

	assert.Equal(t, []string{"user@example.com"}, captured.Destination.ToAddresses)
	assert.Equal(t, "noreply@acme.io", *captured.Source)
	assert.Equal(t, "Welcome", *captured.Message.Subject.Data)
	assert.Equal(t, "Hello there", *captured.Message.Body.Text.Data)
	assert.Equal(t, "<p>Hello there</p>", *captured.Message.Body.Html.Data)
}

func TestEmailProvider_Send_SESFailure(t *testing.T) {
	mock := &mockSESService{
		sendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, stderrors.New("throttled")
		},
	}
	p := NewEmailProvider(mock, "noreply@acme.io", testLogger)

	result, err := p.Send(context.Background(), testNotification(models.ChannelEmail, "user@example.com"))
	assert.Nil(t, result)
	assert.True(t, errors.HasCode(err, errors.ErrCodeProviderSend))
	assert.True(t, errors.IsRetryable(err))
}
