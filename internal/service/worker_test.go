package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/unclebandit/crm-mailer/internal/errors"
	"github.com/unclebandit/crm-mailer/internal/logger"
	"github.com/unclebandit/crm-mailer/internal/model"
	"github.com/unclebandit/crm-mailer/internal/service"
)

type stubIngestor struct {
	got []model.DeliveryEvent
	err error
}

func (s *stubIngestor) Ingest(_ context.Context, ev model.DeliveryEvent) error {
	s.got = append(s.got, ev)
	return s.err
}

func TestWorker_Handle(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		err     error
		wantErr bool
		wantN   int
	}{
		{"valid event", `{"provider_message_id":"p1","kind":"opened","received_at":"2026-03-01T09:00:00Z"}`, nil, false, 1},
		{"malformed payload dropped", `{not json`, nil, false, 0},
		{"invalid event dropped", `{"provider_message_id":"p1","kind":"weird"}`, appErrors.InvalidArgument("bad kind"), false, 1},
		{"store error retried", `{"provider_message_id":"p1","kind":"clicked"}`, errors.New("db down"), true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &stubIngestor{err: tt.err}
			w := service.NewWorker(ing, logger.Discard())

			err := w.Handle([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, ing.got, tt.wantN)
		})
	}
}

func TestWorker_DecodesEventFields(t *testing.T) {
	ing := &stubIngestor{}
	w := service.NewWorker(ing, logger.Discard())

	assert.NoError(t, w.Handle([]byte(`{"provider_message_id":"p9","kind":"bounced"}`)))
	if assert.Len(t, ing.got, 1) {
		assert.Equal(t, "p9", ing.got[0].ProviderMessageID)
		assert.Equal(t, model.EventBounced, ing.got[0].Kind)
	}
}
