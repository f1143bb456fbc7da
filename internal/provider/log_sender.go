package provider

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"
	"github.com/unclebandit/crm-mailer/internal/logger"
)

// LogSender logs emails instead of sending them. FailureRate (0..1) simulates
// per-recipient rejections for local runs.
type LogSender struct {
	Logger      *slog.Logger
	FailureRate float64
}

func (s *LogSender) SendBatch(ctx context.Context, emails []Email, report Report) ([]Outcome, error) {
	return sendEach(ctx, emails, report, func(ctx context.Context, e Email) (string, error) {
		if s.FailureRate > 0 && rand.Float64() < s.FailureRate {
			return "", errors.New("mock sending failed")
		}
		id := "log-" + uuid.NewString()
		s.Logger.InfoContext(ctx, "email logged", "to", logger.RedactEmail(e.To), "subject", e.Subject, "provider_message_id", id)
		return id, nil
	})
}

var _ Sender = (*LogSender)(nil)
