package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/crm-mailer/internal/errors"
	"github.com/unclebandit/crm-mailer/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
	UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error

	// RecordDispatchResult stores the final counts and marks the campaign sent.
	RecordDispatchResult(ctx context.Context, id string, sent, failed int, sentAt time.Time) error

	// IncrementCounter must be atomic in the store; concurrent callers never lose updates.
	IncrementCounter(ctx context.Context, id string, counter model.CampaignCounter) error

	GetMessageStats(ctx context.Context, id string) (map[string]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, subject, body, html_body, template_id, status, total_recipients,
        sent_count, opened_count, clicked_count, bounced_count, failed_count, created_by, created_at, sent_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	query := `
        INSERT INTO campaigns (id, name, subject, body, html_body, template_id, status, total_recipients, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := r.DB.ExecContext(ctx, query,
		c.ID, c.Name, c.Subject, c.Body, c.HTMLBody, c.TemplateID, c.Status, c.TotalRecipients, c.CreatedBy, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	where := ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE campaigns SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	return requireRow(res, appErrors.NewCampaignNotFound(id))
}

func (r *CampaignRepository) RecordDispatchResult(ctx context.Context, id string, sent, failed int, sentAt time.Time) error {
	query := `
        UPDATE campaigns
        SET sent_count=$1, failed_count=$2, status=$3, sent_at=$4
        WHERE id=$5
    `
	res, err := r.DB.ExecContext(ctx, query, sent, failed, model.CampaignSent, sentAt, id)
	if err != nil {
		return err
	}
	return requireRow(res, appErrors.NewCampaignNotFound(id))
}

// Counter updates are row-level increments so concurrent webhooks never race in memory.
var incrementQueries = map[model.CampaignCounter]string{
	model.CounterOpened:  `UPDATE campaigns SET opened_count = opened_count + 1 WHERE id=$1`,
	model.CounterClicked: `UPDATE campaigns SET clicked_count = clicked_count + 1 WHERE id=$1`,
	model.CounterBounced: `UPDATE campaigns SET bounced_count = bounced_count + 1 WHERE id=$1`,
}

func (r *CampaignRepository) IncrementCounter(ctx context.Context, id string, counter model.CampaignCounter) error {
	query, ok := incrementQueries[counter]
	if !ok {
		return appErrors.InvalidArgument("unknown campaign counter %q", counter)
	}
	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(res, appErrors.NewCampaignNotFound(id))
}

func (r *CampaignRepository) GetMessageStats(ctx context.Context, id string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM email_messages WHERE campaign_id=$1 GROUP BY status`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{}
	for _, s := range []model.MessageStatus{
		model.MessageSent, model.MessageDelivered, model.MessageOpened,
		model.MessageClicked, model.MessageBounced, model.MessageFailed,
	} {
		stats[string(s)] = 0
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.Subject, &c.Body, &c.HTMLBody, &c.TemplateID, &c.Status, &c.TotalRecipients,
		&c.SentCount, &c.OpenedCount, &c.ClickedCount, &c.BouncedCount, &c.FailedCount,
		&c.CreatedBy, &c.CreatedAt, &c.SentAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
