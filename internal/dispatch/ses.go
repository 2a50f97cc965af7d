package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/waitlist-service/internal/config"
)

// SESSender sends email via AWS SES using the SDK v2.
type SESSender struct {
	client *sesv2.Client
}

// NewSESSender creates an SES sender. Returns a sender with a nil client if
// credentials are absent; Send reports that as a configuration error.
func NewSESSender(cfg config.EmailConfig) *SESSender {
	s := &SESSender{}
	if cfg.SESAccessKey == "" || cfg.SESSecretKey == "" {
		return s
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SESRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SESAccessKey, cfg.SESSecretKey, "")),
	)
	if err != nil {
		return s
	}
	s.client = sesv2.NewFromConfig(awsCfg)
	return s
}

// Send delivers a single email through SES from the given identity.
func (s *SESSender) Send(ctx context.Context, from config.SendingIdentity, msg *Message) (*SendResult, error) {
	if s.client == nil {
		return nil, fmt.Errorf("ses: client not initialized - check credentials")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", from.FromName, from.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return &SendResult{Provider: "ses", Detail: err.Error()}, nil
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	return &SendResult{
		Success:   true,
		MessageID: messageID,
		Provider:  "ses",
		SentAt:    time.Now(),
	}, nil
}
