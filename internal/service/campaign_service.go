// internal/service/campaign_service.go
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	appErrors "github.com/unclebandit/crm-mailer/internal/errors"
	"github.com/unclebandit/crm-mailer/internal/model"
	"github.com/unclebandit/crm-mailer/internal/repository"
)

// CampaignService owns the campaign aggregate: creation, the single dispatch
// result write, and the atomic roll-up counters fed by delivery events.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	MessageRepo  repository.EmailMessageRepositoryInterface
	Logger       *slog.Logger
}

type CreateCampaignInput struct {
	Name            string
	Subject         string
	Body            string
	HTMLBody        string
	TemplateID      *string
	TotalRecipients int
	CreatedBy       string
}

type CampaignDetails struct {
	*model.Campaign
	OpenRate  float64        `json:"openRate"`
	ClickRate float64        `json:"clickRate"`
	Stats     map[string]int `json:"stats"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// Create persists a new campaign in draft.
func (s *CampaignService) Create(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, appErrors.InvalidArgument("campaign name is required")
	}
	if in.TotalRecipients < 0 {
		return nil, appErrors.InvalidArgument("total recipients cannot be negative")
	}

	c := &model.Campaign{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(in.Name),
		Subject:         in.Subject,
		Body:            in.Body,
		HTMLBody:        in.HTMLBody,
		TemplateID:      in.TemplateID,
		Status:          model.CampaignDraft,
		TotalRecipients: in.TotalRecipients,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) MarkSending(ctx context.Context, c *model.Campaign) error {
	if err := s.CampaignRepo.UpdateStatus(ctx, c.ID, model.CampaignSending); err != nil {
		return err
	}
	c.Status = model.CampaignSending
	return nil
}

// RecordDispatchResult is called once, after the coordinator has walked every recipient.
func (s *CampaignService) RecordDispatchResult(ctx context.Context, c *model.Campaign, sent, failed int) error {
	if sent < 0 || failed < 0 {
		return appErrors.InvalidArgument("dispatch counts cannot be negative")
	}
	if sent+failed > c.TotalRecipients {
		return appErrors.InvalidArgument("sent %d + failed %d exceeds %d recipients", sent, failed, c.TotalRecipients)
	}
	now := time.Now().UTC()
	if err := s.CampaignRepo.RecordDispatchResult(ctx, c.ID, sent, failed, now); err != nil {
		return err
	}
	c.SentCount = sent
	c.FailedCount = failed
	c.Status = model.CampaignSent
	c.SentAt = &now
	return nil
}

func (s *CampaignService) IncrementOpened(ctx context.Context, campaignID string) error {
	return s.CampaignRepo.IncrementCounter(ctx, campaignID, model.CounterOpened)
}

func (s *CampaignService) IncrementClicked(ctx context.Context, campaignID string) error {
	return s.CampaignRepo.IncrementCounter(ctx, campaignID, model.CounterClicked)
}

func (s *CampaignService) IncrementBounced(ctx context.Context, campaignID string) error {
	return s.CampaignRepo.IncrementCounter(ctx, campaignID, model.CounterBounced)
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]*model.Campaign, Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, status)
	if err != nil {
		return nil, Pagination{}, err
	}

	return campaigns, Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID string) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.CampaignRepo.GetMessageStats(ctx, campaignID)
	if err != nil {
		s.Logger.ErrorContext(ctx, "failed to load message stats", "campaign_id", campaignID, "error", err)
		return nil, err
	}

	return &CampaignDetails{
		Campaign:  campaign,
		OpenRate:  campaign.OpenRate(),
		ClickRate: campaign.ClickRate(),
		Stats:     stats,
	}, nil
}

func (s *CampaignService) ListMessages(ctx context.Context, campaignID string) ([]*model.EmailMessage, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.MessageRepo.ListByCampaign(ctx, campaignID)
}
