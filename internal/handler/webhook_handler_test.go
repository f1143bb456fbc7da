package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/crm-mailer/internal/logger"
	"github.com/unclebandit/crm-mailer/internal/model"
	"github.com/unclebandit/crm-mailer/internal/queue"
)

type recordingQueue struct {
	mu     sync.Mutex
	topics []string
	events []model.DeliveryEvent
	err    error
}

func (q *recordingQueue) Publish(_ context.Context, topic string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	var ev model.DeliveryEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	q.topics = append(q.topics, topic)
	q.events = append(q.events, ev)
	return nil
}

func (q *recordingQueue) Subscribe(string, queue.Handler) error { return nil }
func (q *recordingQueue) Close() error                        { return nil }

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newTestHandler(q queue.Queue) *WebhookHandler {
	h := NewWebhookHandler(q, logger.Discard())
	h.now = func() time.Time { return fixedNow }
	return h
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(body)))
	return w
}

func TestHandleEmailEvent(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []model.DeliveryEvent
	}{
		{
			name: "opened camelCase id",
			body: `{"type":"email.opened","data":{"emailId":"re_1"}}`,
			want: []model.DeliveryEvent{{ProviderMessageID: "re_1", Kind: model.EventOpened, ReceivedAt: fixedNow}},
		},
		{
			name: "clicked with timestamp",
			body: `{"type":"email.clicked","created_at":"2026-05-01T08:30:00.000Z","data":{"email_id":"re_2"}}`,
			want: []model.DeliveryEvent{{ProviderMessageID: "re_2", Kind: model.EventClicked, ReceivedAt: time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)}},
		},
		{name: "unsupported type", body: `{"type":"email.complained","data":{"emailId":"re_3"}}`},
		{name: "missing id", body: `{"type":"email.bounced","data":{}}`},
		{name: "garbage", body: `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &recordingQueue{}
			w := post(newTestHandler(q).HandleEmailEvent, tt.body)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, q.events)
			for _, topic := range q.topics {
				assert.Equal(t, queue.DeliveryEventsTopic, topic)
			}
		})
	}
}

func TestHandleEmailEvent_QueueFailureStillOK(t *testing.T) {
	q := &recordingQueue{err: errors.New("broker down")}
	w := post(newTestHandler(q).HandleEmailEvent, `{"type":"email.delivered","data":{"emailId":"re_1"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func snsNotification(t *testing.T, message map[string]any) string {
	t.Helper()
	inner, err := json.Marshal(message)
	require.NoError(t, err)
	outer, err := json.Marshal(map[string]any{
		"Type":      "Notification",
		"MessageId": "sns-1",
		"Timestamp": "2026-05-02T10:00:00.000Z",
		"Message":   string(inner),
	})
	require.NoError(t, err)
	return string(outer)
}

func TestHandleSESEvent(t *testing.T) {
	at := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		message map[string]any
		want    []model.DeliveryEvent
	}{
		{"open event", map[string]any{"eventType": "Open", "mail": map[string]any{"messageId": "ses-1"}},
			[]model.DeliveryEvent{{ProviderMessageID: "ses-1", Kind: model.EventOpened, ReceivedAt: at}}},
		{"bounce notification", map[string]any{"notificationType": "Bounce", "mail": map[string]any{"messageId": "ses-2"}},
			[]model.DeliveryEvent{{ProviderMessageID: "ses-2", Kind: model.EventBounced, ReceivedAt: at}}},
		{"delivery", map[string]any{"eventType": "Delivery", "mail": map[string]any{"messageId": "ses-3"}},
			[]model.DeliveryEvent{{ProviderMessageID: "ses-3", Kind: model.EventDelivered, ReceivedAt: at}}},
		{"complaint ignored", map[string]any{"eventType": "Complaint", "mail": map[string]any{"messageId": "ses-4"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &recordingQueue{}
			w := post(newTestHandler(q).HandleSESEvent, snsNotification(t, tt.message))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, q.events)
		})
	}
}

func TestHandleSESEvent_SubscriptionConfirmation(t *testing.T) {
	q := &recordingQueue{}
	h := newTestHandler(q)
	var confirmed []string
	h.ConfirmSubscription = func(_ context.Context, u string) error {
		confirmed = append(confirmed, u)
		return nil
	}

	w := post(h.HandleSESEvent, `{"Type":"SubscriptionConfirmation","TopicArn":"arn:aws:sns:eu-west-1:1:ses","SubscribeURL":"https://sns.eu-west-1.amazonaws.com/?Action=ConfirmSubscription"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"https://sns.eu-west-1.amazonaws.com/?Action=ConfirmSubscription"}, confirmed)
	assert.Empty(t, q.events)
}

func TestConfirmOverHTTP_RejectsForeignHosts(t *testing.T) {
	h := newTestHandler(&recordingQueue{})
	for _, u := range []string{
		"http://sns.eu-west-1.amazonaws.com/confirm",
		"https://evil.example.com/confirm",
		"https://amazonaws.com.evil.example/confirm",
	} {
		assert.Error(t, h.confirmOverHTTP(context.Background(), u), u)
	}
}
