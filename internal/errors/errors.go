package appErrors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrDispatchFailed  = errors.New("dispatch failed")

	// ErrNoRecipients is an InvalidArgument raised before any campaign is created.
	ErrNoRecipients = fmt.Errorf("%w: no recipients with an email address", ErrInvalidArgument)
)

// ErrCampaignNotFound is returned when a campaign id does not resolve.
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

func (e *ErrCampaignNotFound) Is(target error) bool { return target == ErrNotFound }

// ErrTemplateNotFound is returned when a template id does not resolve.
type ErrTemplateNotFound struct {
	TemplateID string
}

func (e *ErrTemplateNotFound) Error() string {
	return fmt.Sprintf("template with ID %s not found", e.TemplateID)
}

func (e *ErrTemplateNotFound) Is(target error) bool { return target == ErrNotFound }

func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

func NewTemplateNotFound(id string) error {
	return &ErrTemplateNotFound{TemplateID: id}
}

// InvalidArgument wraps ErrInvalidArgument with a reason.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// DispatchFailed wraps the provider error so callers can match ErrDispatchFailed.
func DispatchFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
}
