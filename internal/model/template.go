// internal/model/template.go
package model

type Template struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Subject  string `db:"subject" json:"subject"`
	Body     string `db:"body" json:"body"`
	HTMLBody string `db:"html_body" json:"htmlBody"`
}
