package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/unclebandit/crm-mailer/internal/model"
)

// ContactRepositoryInterface is the recipient store used by the resolver.
type ContactRepositoryInterface interface {
	// Lookup returns the contacts that exist among ids, in no particular order.
	Lookup(ctx context.Context, ids []string) ([]model.Contact, error)
	GetByID(ctx context.Context, id string) (*model.Contact, error)
}

type ContactRepository struct {
	DB *sql.DB
}

const contactSelect = `
        SELECT c.id, COALESCE(c.email, ''), COALESCE(c.first_name, ''), COALESCE(c.last_name, ''),
               COALESCE(c.job_title, ''), COALESCE(c.phone, ''), c.organisation_id, COALESCE(o.name, '')
        FROM contacts c
        LEFT JOIN organisations o ON o.id = c.organisation_id
    `

func (r *ContactRepository) Lookup(ctx context.Context, ids []string) ([]model.Contact, error) {
	rows, err := r.DB.QueryContext(ctx, contactSelect+` WHERE c.id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

// GetByID returns nil, nil when the contact does not exist.
func (r *ContactRepository) GetByID(ctx context.Context, id string) (*model.Contact, error) {
	c, err := scanContact(r.DB.QueryRowContext(ctx, contactSelect+` WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var c model.Contact
	var orgID sql.NullString
	if err := row.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.JobTitle, &c.Phone, &orgID, &c.OrganisationName); err != nil {
		return nil, err
	}
	if orgID.Valid {
		c.OrganisationID = &orgID.String
	}
	return &c, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
