package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unclebandit/crm-mailer/internal/controller"
	"github.com/unclebandit/crm-mailer/internal/handler"
	"github.com/unclebandit/crm-mailer/internal/middleware"
)

// Router builds the HTTP API. Webhook routes are unauthenticated.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.Config.HTTP.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	webhooks := handler.NewWebhookHandler(a.Queue, a.Logger)
	webhooks.Topic = a.Topic()
	r.Post("/webhooks/email", webhooks.HandleEmailEvent)
	r.Post("/webhooks/ses", webhooks.HandleSESEvent)

	campaigns := &controller.CampaignController{
		Dispatch:        a.Dispatch,
		CampaignService: a.Campaigns,
		Logger:          a.Logger,
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireJWT(a.Config.Auth.JWTSecret, a.Logger))
		campaigns.Routes(r)
	})
	return r
}
