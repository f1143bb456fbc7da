// internal/controller/campaign_controller.go
package controller

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/crm-mailer/internal/middleware"
	"github.com/unclebandit/crm-mailer/internal/service"
)

type CampaignController struct {
	Dispatch        *service.DispatchService
	CampaignService *service.CampaignService
	Logger          *slog.Logger
}

// Routes mounts the authenticated email and campaign endpoints.
func (c *CampaignController) Routes(r chi.Router) {
	r.Post("/emails/bulk", c.BulkSend)
	r.Post("/emails/send", c.SendOne)
	r.Get("/campaigns", c.ListCampaigns)
	r.Post("/campaigns/preview", c.Preview)
	r.Get("/campaigns/{id}", c.GetCampaignDetails)
	r.Get("/campaigns/{id}/messages", c.ListMessages)
}

func (c *CampaignController) BulkSend(w http.ResponseWriter, r *http.Request) {
	var req service.BulkSendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	req.SentBy = middleware.UserIDFromContext(r.Context())

	summary, err := c.Dispatch.Send(r.Context(), req)
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// SendOne is an ad hoc send to a single contact; it never creates a campaign.
func (c *CampaignController) SendOne(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactID  string  `json:"contactId"`
		Subject    string  `json:"subject"`
		Body       string  `json:"body"`
		HTMLBody   string  `json:"htmlBody"`
		TemplateID *string `json:"templateId,omitempty"`
		From       string  `json:"from"`
		FromName   string  `json:"fromName"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, c.Logger, err)
		return
	}

	summary, err := c.Dispatch.Send(r.Context(), service.BulkSendRequest{
		ContactIDs: []string{body.ContactID},
		Subject:    body.Subject,
		Body:       body.Body,
		HTMLBody:   body.HTMLBody,
		TemplateID: body.TemplateID,
		FromEmail:  body.From,
		FromName:   body.FromName,
		SentBy:     middleware.UserIDFromContext(r.Context()),
	})
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, status)
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *CampaignController) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := c.CampaignService.ListMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": msgs})
}

// Preview renders the content for one contact without sending.
func (c *CampaignController) Preview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContactID string `json:"contactId"`
		service.BulkSendRequest
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, c.Logger, err)
		return
	}

	email, err := c.Dispatch.Preview(r.Context(), body.ContactID, body.BulkSendRequest)
	if err != nil {
		writeError(w, r, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"to":       email.To,
		"subject":  email.Subject,
		"body":     email.Text,
		"htmlBody": email.HTML,
	})
}
