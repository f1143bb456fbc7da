package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	appErrors "github.com/unclebandit/crm-mailer/internal/errors"
	"github.com/unclebandit/crm-mailer/internal/model"
	"github.com/unclebandit/crm-mailer/internal/repository"
)

// EventIngestor applies delivery events. Implementations are safe for concurrent use.
type EventIngestor interface {
	Ingest(ctx context.Context, ev model.DeliveryEvent) error
}

// IngestService applies provider delivery events to messages and campaign counters.
// Events for unknown messages are dropped without error. Store failures are
// returned so the queue can retry; the webhook caller never sees them.
type IngestService struct {
	Messages  repository.EmailMessageRepositoryInterface
	Campaigns *CampaignService
	Deduper   repository.EventDeduper
	Logger    *slog.Logger
}

func (s *IngestService) Ingest(ctx context.Context, ev model.DeliveryEvent) error {
	if ev.ProviderMessageID == "" {
		s.Logger.DebugContext(ctx, "delivery event without message id dropped", "kind", ev.Kind)
		return nil
	}
	switch ev.Kind {
	case model.EventDelivered, model.EventOpened, model.EventClicked, model.EventBounced:
	default:
		return appErrors.InvalidArgument("unknown delivery event kind %q", ev.Kind)
	}

	msg, err := s.Messages.GetByProviderID(ctx, ev.ProviderMessageID)
	if err != nil {
		return fmt.Errorf("lookup message %s: %w", ev.ProviderMessageID, err)
	}
	if msg == nil {
		s.Logger.DebugContext(ctx, "delivery event for unknown message", "provider_message_id", ev.ProviderMessageID, "kind", ev.Kind)
		return nil
	}

	at := ev.ReceivedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if err := s.Messages.ApplyEvent(ctx, msg.ID, ev.Kind, at); err != nil {
		return fmt.Errorf("apply %s to message %s: %w", ev.Kind, msg.ID, err)
	}

	counter, counts := ev.Kind.Counter()
	if msg.CampaignID == nil || !counts {
		return nil
	}

	claimed, err := s.Deduper.Claim(ctx, ev.ProviderMessageID, ev.Kind)
	if err != nil {
		return err
	}
	if !claimed {
		s.Logger.InfoContext(ctx, "duplicate delivery event not counted", "provider_message_id", ev.ProviderMessageID, "kind", ev.Kind)
		return nil
	}

	if err := s.increment(ctx, *msg.CampaignID, counter); err != nil {
		if relErr := s.Deduper.Release(ctx, ev.ProviderMessageID, ev.Kind); relErr != nil {
			s.Logger.ErrorContext(ctx, "failed to release event claim", "provider_message_id", ev.ProviderMessageID, "error", relErr)
		}
		return fmt.Errorf("increment %s on campaign %s: %w", counter, *msg.CampaignID, err)
	}
	return nil
}

func (s *IngestService) increment(ctx context.Context, campaignID string, counter model.CampaignCounter) error {
	switch counter {
	case model.CounterOpened:
		return s.Campaigns.IncrementOpened(ctx, campaignID)
	case model.CounterClicked:
		return s.Campaigns.IncrementClicked(ctx, campaignID)
	case model.CounterBounced:
		return s.Campaigns.IncrementBounced(ctx, campaignID)
	}
	return appErrors.InvalidArgument("unknown campaign counter %q", counter)
}

var _ EventIngestor = (*IngestService)(nil)
