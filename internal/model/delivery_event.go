// internal/model/delivery_event.go
package model

import "time"

type EventKind string

const (
	EventDelivered EventKind = "delivered"
	EventOpened    EventKind = "opened"
	EventClicked   EventKind = "clicked"
	EventBounced   EventKind = "bounced"
)

// DeliveryEvent is an asynchronous status callback from the send provider.
type DeliveryEvent struct {
	ProviderMessageID string    `json:"provider_message_id"`
	Kind              EventKind `json:"kind"`
	ReceivedAt        time.Time `json:"received_at"`
}

// ParseProviderEventType maps "email.opened" style webhook types to an EventKind.
func ParseProviderEventType(t string) (EventKind, bool) {
	switch t {
	case "email.delivered":
		return EventDelivered, true
	case "email.opened":
		return EventOpened, true
	case "email.clicked":
		return EventClicked, true
	case "email.bounced":
		return EventBounced, true
	}
	return "", false
}

// MessageStatus is the status a message moves to when this event is applied.
func (k EventKind) MessageStatus() MessageStatus {
	switch k {
	case EventOpened:
		return MessageOpened
	case EventClicked:
		return MessageClicked
	case EventBounced:
		return MessageBounced
	}
	return MessageDelivered
}

// Counter is the campaign counter incremented by this event, if any.
func (k EventKind) Counter() (CampaignCounter, bool) {
	switch k {
	case EventOpened:
		return CounterOpened, true
	case EventClicked:
		return CounterClicked, true
	case EventBounced:
		return CounterBounced, true
	}
	return "", false
}
