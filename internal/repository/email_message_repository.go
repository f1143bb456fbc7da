package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/unclebandit/crm-mailer/internal/model"
)

type EmailMessageRepositoryInterface interface {
	// CreateBatch inserts all messages in one transaction.
	CreateBatch(ctx context.Context, msgs []*model.EmailMessage) error
	// GetByProviderID returns nil, nil when no message carries that provider id.
	GetByProviderID(ctx context.Context, providerMessageID string) (*model.EmailMessage, error)
	// ApplyEvent sets the status for kind and stamps opened_at/clicked_at only if unset.
	ApplyEvent(ctx context.Context, id string, kind model.EventKind, at time.Time) error
	ListByCampaign(ctx context.Context, campaignID string) ([]*model.EmailMessage, error)
}

type EmailMessageRepository struct {
	DB *sql.DB
}

const messageColumns = `id, campaign_id, contact_id, organisation_id, to_email, to_name, from_email, from_name,
        subject, body, html_body, status, provider_message_id, error, opened_at, clicked_at, sent_by, sent_at`

func (r *EmailMessageRepository) CreateBatch(ctx context.Context, msgs []*model.EmailMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO email_messages (`+messageColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
    `)
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.CampaignID, m.ContactID, m.OrganisationID, m.ToEmail, m.ToName, m.FromEmail, m.FromName,
			m.Subject, m.Body, m.HTMLBody, m.Status, m.ProviderMessageID, m.Error, m.OpenedAt, m.ClickedAt,
			m.SentBy, m.SentAt,
		); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

func (r *EmailMessageRepository) GetByProviderID(ctx context.Context, providerMessageID string) (*model.EmailMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM email_messages WHERE provider_message_id=$1`
	msg, err := scanMessage(r.DB.QueryRowContext(ctx, query, providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func (r *EmailMessageRepository) ApplyEvent(ctx context.Context, id string, kind model.EventKind, at time.Time) error {
	status := kind.MessageStatus()
	var err error
	switch kind {
	case model.EventOpened:
		_, err = r.DB.ExecContext(ctx,
			`UPDATE email_messages SET status=$1, opened_at=COALESCE(opened_at, $2) WHERE id=$3`, status, at, id)
	case model.EventClicked:
		_, err = r.DB.ExecContext(ctx,
			`UPDATE email_messages SET status=$1, clicked_at=COALESCE(clicked_at, $2) WHERE id=$3`, status, at, id)
	default:
		_, err = r.DB.ExecContext(ctx, `UPDATE email_messages SET status=$1 WHERE id=$2`, status, id)
	}
	return err
}

func (r *EmailMessageRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*model.EmailMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM email_messages WHERE campaign_id=$1 ORDER BY sent_at, id`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []*model.EmailMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanMessage(row rowScanner) (*model.EmailMessage, error) {
	var m model.EmailMessage
	err := row.Scan(
		&m.ID, &m.CampaignID, &m.ContactID, &m.OrganisationID, &m.ToEmail, &m.ToName, &m.FromEmail, &m.FromName,
		&m.Subject, &m.Body, &m.HTMLBody, &m.Status, &m.ProviderMessageID, &m.Error, &m.OpenedAt, &m.ClickedAt,
		&m.SentBy, &m.SentAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

var _ EmailMessageRepositoryInterface = (*EmailMessageRepository)(nil)
