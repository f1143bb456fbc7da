// internal/handler/webhook_handler.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unclebandit/crm-mailer/internal/model"
	"github.com/unclebandit/crm-mailer/internal/queue"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives provider delivery callbacks and queues them for
// ingestion. It always answers 200 so providers never retry on our errors.
type WebhookHandler struct {
	Queue  queue.Queue
	Topic  string
	Logger *slog.Logger
	// ConfirmSubscription visits an SNS SubscribeURL. Nil uses an HTTP GET.
	ConfirmSubscription func(ctx context.Context, subscribeURL string) error
	now                 func() time.Time
}

func NewWebhookHandler(q queue.Queue, log *slog.Logger) *WebhookHandler {
	h := &WebhookHandler{Queue: q, Topic: queue.DeliveryEventsTopic, Logger: log, now: time.Now}
	h.ConfirmSubscription = h.confirmOverHTTP
	return h
}

type resendWebhook struct {
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		EmailID      string `json:"email_id"`
		EmailIDCamel string `json:"emailId"`
	} `json:"data"`
}

// HandleEmailEvent accepts {type, data:{emailId}} payloads.
func (h *WebhookHandler) HandleEmailEvent(w http.ResponseWriter, r *http.Request) {
	defer h.ok(w)

	var payload resendWebhook
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&payload); err != nil {
		h.Logger.WarnContext(r.Context(), "unreadable email webhook", "error", err)
		return
	}

	kind, ok := model.ParseProviderEventType(payload.Type)
	if !ok {
		h.Logger.DebugContext(r.Context(), "ignored email webhook", "type", payload.Type)
		return
	}
	id := payload.Data.EmailID
	if id == "" {
		id = payload.Data.EmailIDCamel
	}

	at := h.now().UTC()
	if ts, err := time.Parse(time.RFC3339Nano, payload.CreatedAt); err == nil {
		at = ts.UTC()
	}
	h.publish(r.Context(), model.DeliveryEvent{ProviderMessageID: id, Kind: kind, ReceivedAt: at})
}

type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	Message      string `json:"Message"`
	Timestamp    string `json:"Timestamp"`
	SubscribeURL string `json:"SubscribeURL"`
}

type sesEvent struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID string `json:"messageId"`
	} `json:"mail"`
}

var sesKinds = map[string]model.EventKind{
	"Delivery": model.EventDelivered,
	"Open":     model.EventOpened,
	"Click":    model.EventClicked,
	"Bounce":   model.EventBounced,
}

// HandleSESEvent accepts SES event notifications delivered through SNS.
func (h *WebhookHandler) HandleSESEvent(w http.ResponseWriter, r *http.Request) {
	defer h.ok(w)

	var env snsEnvelope
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&env); err != nil {
		h.Logger.WarnContext(r.Context(), "unreadable sns webhook", "error", err)
		return
	}

	switch env.Type {
	case "SubscriptionConfirmation":
		h.Logger.InfoContext(r.Context(), "sns subscription confirmation", "topic_arn", env.TopicArn)
		if h.ConfirmSubscription == nil || env.SubscribeURL == "" {
			return
		}
		if err := h.ConfirmSubscription(r.Context(), env.SubscribeURL); err != nil {
			h.Logger.ErrorContext(r.Context(), "sns subscription confirm failed", "topic_arn", env.TopicArn, "error", err)
		}
		return
	case "Notification":
	default:
		h.Logger.DebugContext(r.Context(), "ignored sns message", "type", env.Type)
		return
	}

	var ev sesEvent
	if err := json.Unmarshal([]byte(env.Message), &ev); err != nil {
		h.Logger.WarnContext(r.Context(), "unreadable ses event", "sns_message_id", env.MessageID, "error", err)
		return
	}
	eventType := ev.EventType
	if eventType == "" {
		eventType = ev.NotificationType
	}
	kind, ok := sesKinds[eventType]
	if !ok {
		h.Logger.DebugContext(r.Context(), "ignored ses event", "type", eventType)
		return
	}

	at := h.now().UTC()
	if ts, err := time.Parse(time.RFC3339Nano, env.Timestamp); err == nil {
		at = ts.UTC()
	}
	h.publish(r.Context(), model.DeliveryEvent{ProviderMessageID: ev.Mail.MessageID, Kind: kind, ReceivedAt: at})
}

func (h *WebhookHandler) publish(ctx context.Context, ev model.DeliveryEvent) {
	if ev.ProviderMessageID == "" {
		h.Logger.DebugContext(ctx, "webhook without message id", "kind", ev.Kind)
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.Logger.ErrorContext(ctx, "encode delivery event", "error", err)
		return
	}
	if err := h.Queue.Publish(ctx, h.Topic, payload); err != nil {
		h.Logger.ErrorContext(ctx, "failed to queue delivery event", "provider_message_id", ev.ProviderMessageID, "kind", ev.Kind, "error", err)
	}
}

func (h *WebhookHandler) ok(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received":true}`))
}

// confirmOverHTTP only follows https links on amazonaws.com.
func (h *WebhookHandler) confirmOverHTTP(ctx context.Context, subscribeURL string) error {
	u, err := url.Parse(subscribeURL)
	if err != nil {
		return err
	}
	if u.Scheme != "https" || !strings.HasSuffix(u.Hostname(), ".amazonaws.com") {
		return fmt.Errorf("refusing subscribe url host %q", u.Host)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("subscribe url returned %d", resp.StatusCode)
	}
	return nil
}
