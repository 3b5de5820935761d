package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/adapters/mimeutil"
	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
)

// SESAPI is the part of the SES v2 client used by SESSender
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers raw MIME messages through Amazon SES
type SESSender struct {
	client SESAPI
	creds  aws.CredentialsProvider
	logger *zap.Logger
	now    func() time.Time
}

// NewSESSender loads the AWS configuration for cfg.Region. Static keys are
// used when both are set; otherwise the default credential chain applies.
func NewSESSender(ctx context.Context, cfg config.SESConfig, logger *zap.Logger) (*SESSender, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESSenderFromClient(sesv2.NewFromConfig(awsCfg), awsCfg.Credentials, logger), nil
}

// NewSESSenderFromClient wraps an existing client
func NewSESSenderFromClient(client SESAPI, creds aws.CredentialsProvider, logger *zap.Logger) *SESSender {
	return &SESSender{client: client, creds: creds, logger: logger, now: time.Now}
}

// Send implements core.Sender
func (s *SESSender) Send(ctx context.Context, msg *core.OutboundEmail) error {
	if s.creds == nil {
		return core.ErrMissingCredentials
	}
	if _, err := s.creds.Retrieve(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrMissingCredentials, err)
	}

	data, err := mimeutil.Compose(msg, s.now())
	if err != nil {
		return err
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: data},
		},
	})
	if err != nil {
		var rejected *types.MessageRejected
		if errors.As(err, &rejected) {
			return fmt.Errorf("SES rejected message: %w", err)
		}
		return fmt.Errorf("SES send failed: %w", err)
	}

	s.logger.Debug("Delivered message over SES",
		zap.String("to", msg.To),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}
