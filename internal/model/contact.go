// internal/model/contact.go
package model

import "strings"

type Contact struct {
	ID               string  `db:"id" json:"id"`
	Email            string  `db:"email" json:"email"`
	FirstName        string  `db:"first_name" json:"firstName"`
	LastName         string  `db:"last_name" json:"lastName"`
	JobTitle         string  `db:"job_title" json:"jobTitle"`
	Phone            string  `db:"phone" json:"phone"`
	OrganisationID   *string `db:"organisation_id" json:"organisationId,omitempty"`
	OrganisationName string  `db:"organisation_name" json:"organisationName"`
}

func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Variables returns the placeholder values available to templates for this contact.
func (c *Contact) Variables() map[string]string {
	return map[string]string{
		"firstName":        c.FirstName,
		"lastName":         c.LastName,
		"fullName":         c.FullName(),
		"email":            c.Email,
		"jobTitle":         c.JobTitle,
		"phone":            c.Phone,
		"organisationName": c.OrganisationName,
	}
}
