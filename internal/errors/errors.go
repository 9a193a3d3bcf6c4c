// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidTransition = errors.New("invalid outreach stage transition")
	ErrCampaignPaused    = errors.New("campaign is paused")
	ErrCampaignCompleted = errors.New("campaign is completed")
	ErrSequenceLocked    = errors.New("sequence cannot change while campaign is running")
	ErrNoSubscribers     = errors.New("queue has no subscribers")
	ErrCampaignStatus    = errors.New("campaign status does not allow this operation")
)

// ValidationError rejects a request before any side effect happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Kind, e.ID)
}

func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func NewCampaignNotFound(id string) error {
	return NewNotFound("campaign", id)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports errors caused by the current state of a campaign or
// lead rather than by the request itself.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrCampaignPaused) ||
		errors.Is(err, ErrCampaignCompleted) ||
		errors.Is(err, ErrSequenceLocked) ||
		errors.Is(err, ErrCampaignStatus)
}

// HTTPStatus maps an error to the response code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
