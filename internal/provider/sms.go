// internal/provider/sms.go
package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/validation"
	"notification-engine/internal/models"
)

// Carrier-imposed limit for a single concatenated SMS.
const maxSMSLength = 1600

// SNSService is the slice of the SNS API the SMS provider needs.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSProvider delivers notifications over AWS SNS.
type SMSProvider struct {
	sns      SNSService
	senderID string
	logger   logger.Logger
}

func NewSMSProvider(snsClient SNSService, senderID string, log logger.Logger) *SMSProvider {
	return &SMSProvider{
		sns:      snsClient,
		senderID: senderID,
		logger:   log,
	}
}

func (p *SMSProvider) Channel() models.Channel {
	return models.ChannelSMS
}

func (p *SMSProvider) Validate(n *models.Notification) error {
	if !validation.ValidatePhone(n.RecipientContact) {
		return errors.NewValidationError("invalid phone recipient", fmt.Sprintf("recipient_contact %q is not an E.164 phone number", n.RecipientContact))
	}
	if n.Content == "" {
		return errors.NewValidationError("sms content is required", "content must not be empty for SMS notifications")
	}
	if len(n.Content) > maxSMSLength {
		return errors.NewValidationError("sms content too long", fmt.Sprintf("content is %d characters, limit is %d", len(n.Content), maxSMSLength))
	}
	return nil
}

func (p *SMSProvider) Send(ctx context.Context, n *models.Notification) (*models.DeliveryResult, error) {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(n.RecipientContact),
		Message:     aws.String(n.Content),
	}
	if p.senderID != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(p.senderID),
			},
		}
	}

	result, err := p.sns.Publish(ctx, input)
	if err != nil {
		p.logger.Error("SNS publish failed", map[string]interface{}{
			"notification_id": n.ID.String(),
			"error":           err.Error(),
		})
		return nil, errors.NewProviderSendError("SNS publish failed", err)
	}

	externalID := ""
	if result.MessageId != nil {
		externalID = *result.MessageId
	}

	p.logger.Info("sms sent", map[string]interface{}{
		"notification_id": n.ID.String(),
		"message_id":      externalID,
	})

	return &models.DeliveryResult{
		Success:    true,
		ExternalID: externalID,
		Message:    "accepted by SNS",
	}, nil
}
