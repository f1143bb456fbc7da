// Package app wires configuration into the repositories, providers and
// services shared by the server and worker binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/crm-mailer/internal/branding"
	"github.com/unclebandit/crm-mailer/internal/config"
	"github.com/unclebandit/crm-mailer/internal/db"
	"github.com/unclebandit/crm-mailer/internal/provider"
	"github.com/unclebandit/crm-mailer/internal/queue"
	"github.com/unclebandit/crm-mailer/internal/repository"
	"github.com/unclebandit/crm-mailer/internal/service"
)

type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *sql.DB
	Redis     *redis.Client
	Queue     queue.Queue
	Campaigns *service.CampaignService
	Dispatch  *service.DispatchService
	Ingest    *service.IngestService
}

// New connects to the configured stores and builds the services.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	conn, err := db.Open(ctx, cfg.Database.DSN(), log)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: log, DB: conn}

	if cfg.Webhooks.Dedupe == "redis" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	sender, err := NewSender(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	q, err := NewQueue(cfg.Queue, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Queue = q

	var shared service.SharedVariables
	if cfg.Branding.LogoBucket != "" {
		presigner, err := branding.NewS3Presigner(ctx, cfg.Branding.LogoRegion, cfg.Branding.LogoBucket, cfg.Branding.LogoKey)
		if err != nil {
			a.Close()
			return nil, err
		}
		shared = branding.NewLogoCache(presigner, cfg.Branding.LogoTTL, log)
	}

	a.wire(sender, shared)
	return a, nil
}

func (a *App) wire(sender provider.Sender, shared service.SharedVariables) {
	campaignRepo := &repository.CampaignRepository{DB: a.DB}
	messageRepo := &repository.EmailMessageRepository{DB: a.DB}
	contactRepo := &repository.ContactRepository{DB: a.DB}
	templateRepo := &repository.TemplateRepository{DB: a.DB}

	a.Campaigns = &service.CampaignService{
		CampaignRepo: campaignRepo,
		MessageRepo:  messageRepo,
		Logger:       a.Logger,
	}
	a.Dispatch = &service.DispatchService{
		Resolver:    &service.RecipientResolver{Contacts: contactRepo},
		Templates:   templateRepo,
		Campaigns:   a.Campaigns,
		Messages:    messageRepo,
		Provider:    sender,
		Shared:      shared,
		SendTimeout: a.Config.Send.Timeout,
		FromEmail:   a.Config.Send.FromEmail,
		FromName:    a.Config.Send.FromName,
		Logger:      a.Logger,
	}
	a.Ingest = &service.IngestService{
		Messages:  messageRepo,
		Campaigns: a.Campaigns,
		Deduper:   NewDeduper(a.Config.Webhooks, a.DB, a.Redis),
		Logger:    a.Logger,
	}
}

// Topic is the queue topic carrying delivery events.
func (a *App) Topic() string {
	if a.Config.Queue.Topic != "" {
		return a.Config.Queue.Topic
	}
	return queue.DeliveryEventsTopic
}

// StartIngestWorker subscribes the ingest worker to the delivery events topic.
func (a *App) StartIngestWorker() error {
	w := service.NewWorker(a.Ingest, a.Logger)
	return a.Queue.Subscribe(a.Topic(), w.Handle)
}

func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// NewSender builds the configured send provider.
func NewSender(ctx context.Context, cfg *config.Config, log *slog.Logger) (provider.Sender, error) {
	switch cfg.Send.Provider {
	case "resend":
		if cfg.Resend.APIKey == "" {
			return nil, errors.New("resend provider requires resend.api_key")
		}
		return provider.NewResendProvider(cfg.Resend.APIKey, log), nil
	case "ses":
		return provider.NewSESProvider(ctx, cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region, cfg.SES.ConfigurationSet, log)
	case "log":
		return &provider.LogSender{Logger: log}, nil
	}
	return nil, fmt.Errorf("unknown send provider %q", cfg.Send.Provider)
}

// NewDeduper picks the event de-duplication store. Redis falls back to
// postgres when no client is available.
func NewDeduper(cfg config.WebhookConfig, conn *sql.DB, rdb *redis.Client) repository.EventDeduper {
	switch cfg.Dedupe {
	case "none":
		return repository.NoopEventDeduper{}
	case "redis":
		if rdb != nil {
			return &repository.RedisEventDeduper{Client: rdb, TTL: cfg.DedupeTTL}
		}
	}
	return &repository.PostgresEventDeduper{DB: conn}
}

func NewQueue(cfg config.QueueConfig, log *slog.Logger) (queue.Queue, error) {
	if cfg.Driver == "amqp" {
		q, err := queue.DialAMQP(cfg.AMQPURL, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	}
	return queue.NewInMemoryQueue(log), nil
}
