package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	appErrors "github.com/unclebandit/crm-mailer/internal/errors"
	"github.com/unclebandit/crm-mailer/internal/logger"
	"github.com/unclebandit/crm-mailer/internal/model"
	"github.com/unclebandit/crm-mailer/internal/provider"
	"github.com/unclebandit/crm-mailer/internal/repository"
)

// DispatchState is the coordinator's position within a single send.
type DispatchState string

const (
	StateNotStarted DispatchState = "not_started"
	StateResolving  DispatchState = "resolving"
	StateRendering  DispatchState = "rendering"
	StateSending    DispatchState = "sending"
	StateCompleted  DispatchState = "completed"
)

// SharedVariables supplies template variables common to every recipient (logoUrl).
type SharedVariables interface {
	Variables(ctx context.Context) map[string]string
}

type BulkSendRequest struct {
	ContactIDs   []string `json:"contactIds"`
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
	HTMLBody     string   `json:"htmlBody"`
	TemplateID   *string  `json:"templateId,omitempty"`
	CampaignName string   `json:"campaignName,omitempty"`
	FromEmail    string   `json:"from,omitempty"`
	FromName     string   `json:"fromName,omitempty"`
	// SentBy is taken from the authenticated caller, never from the body.
	SentBy string `json:"-"`
}

type DispatchSummary struct {
	TotalRecipients int     `json:"totalRecipients"`
	Sent            int     `json:"sent"`
	Failed          int     `json:"failed"`
	CampaignID      *string `json:"campaignId,omitempty"`
}

// DispatchService resolves recipients, renders each email and submits the
// batch to the send provider in a single pass. Per-recipient failures are
// counted, never retried.
type DispatchService struct {
	Resolver    *RecipientResolver
	Templates   repository.TemplateRepositoryInterface
	Campaigns   *CampaignService
	Messages    repository.EmailMessageRepositoryInterface
	Provider    provider.Sender
	Shared      SharedVariables
	SendTimeout time.Duration
	FromEmail   string
	FromName    string
	Logger      *slog.Logger
}

type dispatchRun struct {
	state DispatchState
	log   *slog.Logger
}

func (r *dispatchRun) advance(ctx context.Context, next DispatchState) {
	r.log.DebugContext(ctx, "dispatch state", "from", r.state, "to", next)
	r.state = next
}

type content struct {
	subject, body, html string
}

// Send runs one dispatch. A whole-batch provider failure returns
// ErrDispatchFailed and leaves any created campaign in sending; messages the
// provider reported before failing are kept.
func (s *DispatchService) Send(ctx context.Context, req BulkSendRequest) (*DispatchSummary, error) {
	run := &dispatchRun{state: StateNotStarted, log: s.Logger}

	run.advance(ctx, StateResolving)
	recipients, err := s.Resolver.Resolve(ctx, req.ContactIDs)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, appErrors.ErrNoRecipients
	}

	tmpl, err := s.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}

	from, fromName := req.FromEmail, req.FromName
	if from == "" {
		from, fromName = s.FromEmail, s.FromName
	}
	if from == "" {
		return nil, appErrors.InvalidArgument("sender address is required")
	}

	var campaign *model.Campaign
	if name := strings.TrimSpace(req.CampaignName); name != "" {
		campaign, err = s.Campaigns.Create(ctx, CreateCampaignInput{
			Name:            name,
			Subject:         tmpl.subject,
			Body:            tmpl.body,
			HTMLBody:        tmpl.html,
			TemplateID:      req.TemplateID,
			TotalRecipients: len(recipients),
			CreatedBy:       req.SentBy,
		})
		if err != nil {
			return nil, err
		}
		if err := s.Campaigns.MarkSending(ctx, campaign); err != nil {
			return nil, err
		}
	}

	run.advance(ctx, StateRendering)
	var shared map[string]string
	if s.Shared != nil {
		shared = s.Shared.Variables(ctx)
	}
	emails := make([]provider.Email, len(recipients))
	for i, rcpt := range recipients {
		vars := mergeVariables(shared, rcpt.Variables)
		emails[i] = provider.Email{
			To:       rcpt.Email,
			ToName:   rcpt.Name,
			From:     from,
			FromName: fromName,
			Subject:  RenderTemplate(tmpl.subject, vars),
			Text:     RenderTemplate(tmpl.body, vars),
			HTML:     RenderTemplate(tmpl.html, vars),
			Tags:     map[string]string{"contact_id": rcpt.ContactID},
		}
		if campaign != nil {
			emails[i].Tags["campaign_id"] = campaign.ID
		}
	}

	run.advance(ctx, StateSending)
	rec := &outcomeRecorder{
		svc:        s,
		sentBy:     req.SentBy,
		recipients: recipients,
		emails:     emails,
		campaign:   campaign,
		sentAt:     time.Now().UTC(),
		saved:      make([]bool, len(emails)),
	}
	outcomes, err := s.sendBatch(ctx, emails, func(offset int, outs []provider.Outcome) {
		rec.record(ctx, offset, outs)
	})
	if err != nil {
		attrs := []any{"recipients", len(emails), "recorded", rec.sent + rec.failed, "error", err}
		if campaign != nil {
			attrs = append(attrs, "campaign_id", campaign.ID)
		}
		s.Logger.ErrorContext(ctx, "dispatch failed, campaign left in sending", attrs...)
		return nil, appErrors.DispatchFailed(err)
	}
	rec.finish(ctx, outcomes)
	sent, failed := rec.sent, rec.failed

	summary := &DispatchSummary{TotalRecipients: len(recipients), Sent: sent, Failed: failed}
	if campaign != nil {
		summary.CampaignID = &campaign.ID
		if err := s.Campaigns.RecordDispatchResult(ctx, campaign, sent, failed); err != nil {
			s.Logger.ErrorContext(ctx, "failed to record dispatch result", "campaign_id", campaign.ID, "error", err)
			return summary, err
		}
	}

	run.advance(ctx, StateCompleted)
	s.Logger.InfoContext(ctx, "dispatch completed", "recipients", summary.TotalRecipients, "sent", sent, "failed", failed)
	return summary, nil
}

// Preview renders the request for one contact without sending anything.
func (s *DispatchService) Preview(ctx context.Context, contactID string, req BulkSendRequest) (*provider.Email, error) {
	recipients, err := s.Resolver.Resolve(ctx, []string{contactID})
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, appErrors.ErrNoRecipients
	}
	tmpl, err := s.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}
	var shared map[string]string
	if s.Shared != nil {
		shared = s.Shared.Variables(ctx)
	}
	vars := mergeVariables(shared, recipients[0].Variables)
	return &provider.Email{
		To:      recipients[0].Email,
		ToName:  recipients[0].Name,
		Subject: RenderTemplate(tmpl.subject, vars),
		Text:    RenderTemplate(tmpl.body, vars),
		HTML:    RenderTemplate(tmpl.html, vars),
	}, nil
}

// resolveContent fills empty request fields from the referenced template.
func (s *DispatchService) resolveContent(ctx context.Context, req BulkSendRequest) (content, error) {
	c := content{subject: req.Subject, body: req.Body, html: req.HTMLBody}
	if req.TemplateID != nil && *req.TemplateID != "" {
		t, err := s.Templates.GetByID(ctx, *req.TemplateID)
		if err != nil {
			return content{}, err
		}
		if c.subject == "" {
			c.subject = t.Subject
		}
		if c.body == "" {
			c.body = t.Body
		}
		if c.html == "" {
			c.html = t.HTMLBody
		}
	}
	if strings.TrimSpace(c.subject) == "" {
		return content{}, appErrors.InvalidArgument("subject is required")
	}
	if strings.TrimSpace(c.body) == "" && strings.TrimSpace(c.html) == "" {
		return content{}, appErrors.InvalidArgument("body or htmlBody is required")
	}
	return c, nil
}

func (s *DispatchService) sendBatch(ctx context.Context, emails []provider.Email, report provider.Report) ([]provider.Outcome, error) {
	timeout := s.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcomes, err := s.Provider.SendBatch(sendCtx, emails, report)
	if err == nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
		s.Logger.WarnContext(ctx, "send deadline overrun, keeping provider outcomes", "timeout", timeout, "outcomes", len(outcomes))
	}
	return outcomes, err
}

// outcomeRecorder writes one message per email as soon as its outcome is
// known, so delivery events for early recipients can find their message
// while the rest of the batch is still sending.
type outcomeRecorder struct {
	svc        *DispatchService
	sentBy     string
	recipients []Recipient
	emails     []provider.Email
	campaign   *model.Campaign
	sentAt     time.Time

	mu           sync.Mutex
	saved        []bool
	sent, failed int
}

func (r *outcomeRecorder) record(ctx context.Context, offset int, outcomes []provider.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := make([]*model.EmailMessage, 0, len(outcomes))
	for j, o := range outcomes {
		i := offset + j
		if i < 0 || i >= len(r.emails) || r.saved[i] {
			continue
		}
		r.saved[i] = true
		messages = append(messages, r.message(ctx, i, o))
	}
	r.persist(ctx, messages)
}

// finish records every email the provider did not report, from the returned
// list. A short outcome list counts the missing tail as failures.
func (r *outcomeRecorder) finish(ctx context.Context, outcomes []provider.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var messages []*model.EmailMessage
	for i, e := range r.emails {
		if r.saved[i] {
			continue
		}
		o := provider.Outcome{Address: e.To, Error: "no outcome returned by provider"}
		if i < len(outcomes) {
			o = outcomes[i]
		}
		r.saved[i] = true
		messages = append(messages, r.message(ctx, i, o))
	}
	r.persist(ctx, messages)
}

func (r *outcomeRecorder) message(ctx context.Context, i int, o provider.Outcome) *model.EmailMessage {
	e, rcpt := r.emails[i], r.recipients[i]
	msg := &model.EmailMessage{
		ID:             uuid.NewString(),
		ContactID:      &rcpt.ContactID,
		OrganisationID: rcpt.OrganisationID,
		ToEmail:        e.To,
		ToName:         e.ToName,
		FromEmail:      e.From,
		FromName:       e.FromName,
		Subject:        e.Subject,
		Body:           e.Text,
		HTMLBody:       e.HTML,
		SentBy:         r.sentBy,
		SentAt:         r.sentAt,
	}
	if r.campaign != nil {
		msg.CampaignID = &r.campaign.ID
	}
	if o.Success {
		r.sent++
		msg.Status = model.MessageSent
		if o.ProviderMessageID != "" {
			id := o.ProviderMessageID
			msg.ProviderMessageID = &id
		}
		return msg
	}
	r.failed++
	msg.Status = model.MessageFailed
	errText := o.Error
	msg.Error = &errText
	r.svc.Logger.WarnContext(ctx, "recipient send failed", "to", logger.RedactEmail(e.To), "error", errText)
	return msg
}

func (r *outcomeRecorder) persist(ctx context.Context, messages []*model.EmailMessage) {
	if len(messages) == 0 {
		return
	}
	if err := r.svc.Messages.CreateBatch(ctx, messages); err != nil {
		r.svc.Logger.ErrorContext(ctx, "failed to persist sent messages", "count", len(messages), "error", err)
	}
}

// mergeVariables lets recipient values win over shared ones.
func mergeVariables(shared, own map[string]string) map[string]string {
	out := make(map[string]string, len(shared)+len(own))
	for k, v := range shared {
		out[k] = v
	}
	for k, v := range own {
		out[k] = v
	}
	return out
}
