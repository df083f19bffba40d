package apperrors

import (
	"errors"
	"fmt"
)

// ErrUnauthorized marks a request rejected for a missing, invalid or
// expired credential. Callers react by redirecting to the login entry
// point instead of retrying.
var ErrUnauthorized = errors.New("unauthorized")

// ErrTokenExpired is returned when a credential token decodes fine but
// its exp claim is in the past. Treated the same as having no token.
var ErrTokenExpired = errors.New("credential token expired")

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ValidationError is malformed user input. It is surfaced inline and
// never sent to the backend.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a user-input validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// APIError carries the backend-provided message for a failed request.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// BatchDeleteError aggregates per-item failures of a bulk delete.
// Successful items are applied regardless; Failed preserves the order
// in which the ids were requested.
type BatchDeleteError struct {
	Failed []FailedDelete
}

type FailedDelete struct {
	ID     int
	Reason string
}

func (e *BatchDeleteError) Error() string {
	msg := fmt.Sprintf("failed to delete %d campaign(s):", len(e.Failed))
	for _, f := range e.Failed {
		msg += fmt.Sprintf(" ID %d: %s;", f.ID, f.Reason)
	}
	return msg
}
