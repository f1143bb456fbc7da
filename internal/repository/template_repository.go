package repository

import (
	"context"
	"database/sql"
	"errors"

	appErrors "github.com/unclebandit/crm-mailer/internal/errors"
	"github.com/unclebandit/crm-mailer/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Template, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*model.Template, error) {
	var t model.Template
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(subject, ''), COALESCE(body, ''), COALESCE(html_body, '') FROM email_templates WHERE id=$1`, id,
	).Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.HTMLBody)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewTemplateNotFound(id)
		}
		return nil, err
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
