package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	appErrors "github.com/unclebandit/crm-mailer/internal/errors"
	"github.com/unclebandit/crm-mailer/internal/model"
)

// Worker turns queued event payloads into ingest calls.
type Worker struct {
	Ingestor EventIngestor
	Logger   *slog.Logger
	Timeout  time.Duration
}

func NewWorker(ingestor EventIngestor, log *slog.Logger) *Worker {
	return &Worker{Ingestor: ingestor, Logger: log, Timeout: 10 * time.Second}
}

// Handle is a queue handler. Malformed payloads and invalid events are dropped
// (nil) so they are not redelivered; store errors are returned for retry.
func (w *Worker) Handle(payload []byte) error {
	var ev model.DeliveryEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		w.Logger.Warn("invalid delivery event payload", "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.Timeout)
	defer cancel()

	if err := w.Ingestor.Ingest(ctx, ev); err != nil {
		if errors.Is(err, appErrors.ErrInvalidArgument) {
			w.Logger.Warn("delivery event rejected", "kind", ev.Kind, "error", err)
			return nil
		}
		return err
	}
	return nil
}
