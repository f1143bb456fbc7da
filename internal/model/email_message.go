// internal/model/email_message.go
package model

import "time"

type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageOpened    MessageStatus = "opened"
	MessageClicked   MessageStatus = "clicked"
	MessageBounced   MessageStatus = "bounced"
	MessageFailed    MessageStatus = "failed"
)

// EmailMessage is one rendered, addressed email. CampaignID is nil for ad hoc sends.
type EmailMessage struct {
	ID                string        `db:"id" json:"id"`
	CampaignID        *string       `db:"campaign_id" json:"campaignId,omitempty"`
	ContactID         *string       `db:"contact_id" json:"contactId,omitempty"`
	OrganisationID    *string       `db:"organisation_id" json:"organisationId,omitempty"`
	ToEmail           string        `db:"to_email" json:"toEmail"`
	ToName            string        `db:"to_name" json:"toName"`
	FromEmail         string        `db:"from_email" json:"fromEmail"`
	FromName          string        `db:"from_name" json:"fromName"`
	Subject           string        `db:"subject" json:"subject"`
	Body              string        `db:"body" json:"body"`
	HTMLBody          string        `db:"html_body" json:"htmlBody"`
	Status            MessageStatus `db:"status" json:"status"`
	ProviderMessageID *string       `db:"provider_message_id" json:"providerMessageId,omitempty"`
	Error             *string       `db:"error" json:"error,omitempty"`
	OpenedAt          *time.Time    `db:"opened_at" json:"openedAt,omitempty"`
	ClickedAt         *time.Time    `db:"clicked_at" json:"clickedAt,omitempty"`
	SentBy            string        `db:"sent_by" json:"sentBy"`
	SentAt            time.Time     `db:"sent_at" json:"sentAt"`
}
