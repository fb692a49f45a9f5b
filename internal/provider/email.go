// internal/provider/email.go
package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/validation"
	"notification-engine/internal/models"
)

// SESService is the slice of the SES API the email provider needs.
// Defined here so tests can mock it.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailProvider delivers notifications over AWS SES.
type EmailProvider struct {
	ses       SESService
	fromEmail string
	logger    logger.Logger
}

func NewEmailProvider(sesClient SESService, fromEmail string, log logger.Logger) *EmailProvider {
	return &EmailProvider{
		ses:       sesClient,
		fromEmail: fromEmail,
		logger:    log,
	}
}

func (p *EmailProvider) Channel() models.Channel {
	return models.ChannelEmail
}

func (p *EmailProvider) Validate(n *models.Notification) error {
	if !validation.ValidateEmail(n.RecipientContact) {
		return errors.NewValidationError("invalid email recipient", fmt.Sprintf("recipient_contact %q is not a valid email address", n.RecipientContact))
	}
	if n.Subject == "" {
		return errors.NewValidationError("email subject is required", "subject must not be empty for EMAIL notifications")
	}
	if n.Content == "" && n.HTMLContent == "" {
		return errors.NewValidationError("email body is required", "content or html_content must be set for EMAIL notifications")
	}
	return nil
}

func (p *EmailProvider) Send(ctx context.Context, n *models.Notification) (*models.DeliveryResult, error) {
	body := &types.Body{}
	if n.Content != "" {
		body.Text = &types.Content{Data: aws.String(n.Content)}
	}
	if n.HTMLContent != "" {
		body.Html = &types.Content{Data: aws.String(n.HTMLContent)}
	}

	input := &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{n.RecipientContact},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(n.Subject)},
			Body:    body,
		},
		Source: aws.String(p.fromEmail),
	}

	result, err := p.ses.SendEmail(ctx, input)
	if err != nil {
		p.logger.Error("SES send failed", map[string]interface{}{
			"notification_id": n.ID.String(),
			"error":           err.Error(),
		})
		return nil, errors.NewProviderSendError("SES send failed", err)
	}

	externalID := ""
	if result.MessageId != nil {
		externalID = *result.MessageId
	}

	p.logger.Info("email sent", map[string]interface{}{
		"notification_id": n.ID.String(),
		"message_id":      externalID,
	})

	return &models.DeliveryResult{
		Success:    true,
		ExternalID: externalID,
		Message:    "accepted by SES",
	}, nil
}
