package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/unclebandit/crm-mailer/internal/logger"
)

// resendBatchSize is the most emails Resend accepts in one batch call.
const resendBatchSize = 100

// resendEmails and resendBatch are the parts of the Resend client we use.
type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type resendBatch interface {
	SendWithContext(ctx context.Context, params []*resend.SendEmailRequest) (*resend.BatchEmailResponse, error)
}

// ResendProvider sends through Resend. Delivery webhooks from Resend carry the
// returned email id, which is stored as the provider message id.
type ResendProvider struct {
	emails resendEmails
	batch  resendBatch
	log    *slog.Logger
}

func NewResendProvider(apiKey string, log *slog.Logger) *ResendProvider {
	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: statusGuard{next: http.DefaultTransport},
	}
	return newResendProvider(resend.NewCustomClient(httpClient, apiKey), log)
}

func newResendProvider(client *resend.Client, log *slog.Logger) *ResendProvider {
	return &ResendProvider{emails: client.Emails, batch: client.Batch, log: log}
}

// SendBatch sends in chunks of resendBatchSize, reporting each chunk as soon
// as Resend accepts it.
func (p *ResendProvider) SendBatch(ctx context.Context, emails []Email, report Report) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(emails))
	for start := 0; start < len(emails); start += resendBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+resendBatchSize, len(emails))
		chunk, err := p.sendChunk(ctx, start, emails[start:end], report)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, chunk...)
	}
	return outcomes, nil
}

func (p *ResendProvider) sendChunk(ctx context.Context, offset int, emails []Email, report Report) ([]Outcome, error) {
	reqs := make([]*resend.SendEmailRequest, len(emails))
	for i, e := range emails {
		reqs[i] = resendRequest(e)
	}

	resp, err := p.batch.SendWithContext(ctx, reqs)
	if err != nil {
		if abortsBatch(err) {
			return nil, err
		}
		// A single invalid email rejects the whole batch call; resend the
		// chunk one by one so only that email fails.
		p.log.WarnContext(ctx, "resend batch rejected, sending individually", "size", len(reqs), "error", err)
		chunkReport := report
		if report != nil {
			chunkReport = func(i int, o []Outcome) { report(offset+i, o) }
		}
		return sendEach(ctx, emails, chunkReport, func(ctx context.Context, e Email) (string, error) {
			return p.sendOne(ctx, e)
		})
	}

	outcomes := make([]Outcome, len(emails))
	for i, e := range emails {
		if resp != nil && i < len(resp.Data) && resp.Data[i].Id != "" {
			outcomes[i] = Outcome{Address: e.To, Success: true, ProviderMessageID: resp.Data[i].Id}
			continue
		}
		outcomes[i] = Outcome{Address: e.To, Success: false, Error: "resend returned no email id"}
	}
	if report != nil {
		report(offset, outcomes)
	}
	return outcomes, nil
}

func (p *ResendProvider) sendOne(ctx context.Context, e Email) (string, error) {
	resp, err := p.emails.SendWithContext(ctx, resendRequest(e))
	if err != nil {
		p.log.WarnContext(ctx, "resend send failed", "to", logger.RedactEmail(e.To), "error", err)
		return "", err
	}
	if resp == nil || resp.Id == "" {
		return "", errors.New("resend returned no email id")
	}
	return resp.Id, nil
}

func resendRequest(e Email) *resend.SendEmailRequest {
	req := &resend.SendEmailRequest{
		From:    formatAddress(e.FromName, e.From),
		To:      []string{e.To},
		Subject: e.Subject,
		Text:    e.Text,
		Html:    e.HTML,
	}
	for k, v := range e.Tags {
		req.Tags = append(req.Tags, resend.Tag{Name: k, Value: v})
	}
	return req
}

var _ Sender = (*ResendProvider)(nil)
