// internal/model/campaign.go
package model

import (
	"math"
	"time"
)

type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
)

// CampaignCounter names one of the roll-up counters updated by delivery events.
type CampaignCounter string

const (
	CounterOpened  CampaignCounter = "opened_count"
	CounterClicked CampaignCounter = "clicked_count"
	CounterBounced CampaignCounter = "bounced_count"
)

type Campaign struct {
	ID              string         `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Subject         string         `db:"subject" json:"subject"`
	Body            string         `db:"body" json:"body"`
	HTMLBody        string         `db:"html_body" json:"htmlBody"`
	TemplateID      *string        `db:"template_id" json:"templateId,omitempty"`
	Status          CampaignStatus `db:"status" json:"status"`
	TotalRecipients int            `db:"total_recipients" json:"totalRecipients"`
	SentCount       int            `db:"sent_count" json:"sentCount"`
	OpenedCount     int            `db:"opened_count" json:"openedCount"`
	ClickedCount    int            `db:"clicked_count" json:"clickedCount"`
	BouncedCount    int            `db:"bounced_count" json:"bouncedCount"`
	FailedCount     int            `db:"failed_count" json:"failedCount"`
	CreatedBy       string         `db:"created_by" json:"createdBy"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	SentAt          *time.Time     `db:"sent_at" json:"sentAt,omitempty"`
}

// OpenRate is openedCount/sentCount as a percentage rounded to one decimal.
func (c *Campaign) OpenRate() float64 {
	return percentage(c.OpenedCount, c.SentCount)
}

// ClickRate is clickedCount/sentCount as a percentage rounded to one decimal.
func (c *Campaign) ClickRate() float64 {
	return percentage(c.ClickedCount, c.SentCount)
}

func percentage(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}
