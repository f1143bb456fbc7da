package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/unclebandit/crm-mailer/internal/logger"
)

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESProvider sends through AWS SES v2. Delivery events arrive through SNS.
type SESProvider struct {
	client           sesAPI
	configurationSet string
	log              *slog.Logger
}

// NewSESProvider uses static credentials when given, otherwise the default chain.
func NewSESProvider(ctx context.Context, accessKey, secretKey, region, configurationSet string, log *slog.Logger) (*SESProvider, error) {
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESProvider{client: sesv2.NewFromConfig(cfg), configurationSet: configurationSet, log: log}, nil
}

// SES tag values allow only [A-Za-z0-9_-.@].
var sesTagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_\-.@]`)

func (p *SESProvider) SendBatch(ctx context.Context, emails []Email, report Report) ([]Outcome, error) {
	return sendEach(ctx, emails, report, func(ctx context.Context, e Email) (string, error) {
		body := &types.Body{}
		if e.HTML != "" {
			body.Html = &types.Content{Data: aws.String(e.HTML), Charset: aws.String("UTF-8")}
		}
		if e.Text != "" {
			body.Text = &types.Content{Data: aws.String(e.Text), Charset: aws.String("UTF-8")}
		}
		input := &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(formatAddress(e.FromName, e.From)),
			Destination:      &types.Destination{ToAddresses: []string{e.To}},
			Content: &types.EmailContent{
				Simple: &types.Message{
					Subject: &types.Content{Data: aws.String(e.Subject), Charset: aws.String("UTF-8")},
					Body:    body,
				},
			},
		}
		if p.configurationSet != "" {
			input.ConfigurationSetName = aws.String(p.configurationSet)
		}
		for k, v := range e.Tags {
			if v == "" {
				continue
			}
			input.EmailTags = append(input.EmailTags, types.MessageTag{
				Name:  aws.String(k),
				Value: aws.String(sesTagUnsafe.ReplaceAllString(v, "_")),
			})
		}

		out, err := p.client.SendEmail(ctx, input)
		if err != nil {
			p.log.WarnContext(ctx, "ses send failed", "to", logger.RedactEmail(e.To), "error", err)
			return "", err
		}
		if out.MessageId == nil || *out.MessageId == "" {
			return "", errors.New("ses returned no message id")
		}
		return *out.MessageId, nil
	})
}

var _ Sender = (*SESProvider)(nil)
