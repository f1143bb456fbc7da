package service

import (
	"context"
	"strings"

	appErrors "github.com/unclebandit/crm-mailer/internal/errors"
	"github.com/unclebandit/crm-mailer/internal/repository"
)

// Recipient is a contact that can receive email, with its template variables.
type Recipient struct {
	ContactID      string
	Email          string
	Name           string
	OrganisationID *string
	Variables      map[string]string
}

type RecipientResolver struct {
	Contacts repository.ContactRepositoryInterface
}

// Resolve returns the contacts among ids that have an email address, keeping
// input order and dropping repeated ids.
func (r *RecipientResolver) Resolve(ctx context.Context, ids []string) ([]Recipient, error) {
	if len(ids) == 0 {
		return nil, appErrors.InvalidArgument("recipient list is empty")
	}

	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, appErrors.InvalidArgument("recipient list is empty")
	}

	contacts, err := r.Contacts.Lookup(ctx, unique)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]int, len(contacts))
	for i := range contacts {
		byID[contacts[i].ID] = i
	}

	recipients := make([]Recipient, 0, len(unique))
	for _, id := range unique {
		i, ok := byID[id]
		if !ok {
			continue
		}
		c := contacts[i]
		email := strings.TrimSpace(c.Email)
		if email == "" {
			continue
		}
		c.Email = email
		recipients = append(recipients, Recipient{
			ContactID:      c.ID,
			Email:          email,
			Name:           c.FullName(),
			OrganisationID: c.OrganisationID,
			Variables:      c.Variables(),
		})
	}
	return recipients, nil
}
