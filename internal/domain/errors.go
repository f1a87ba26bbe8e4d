// Package domain holds the error taxonomy shared by the tracker's layers.
// Callers match with errors.Is; user-facing surfaces map these to generic
// messages and never echo wrapped upstream text.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed user input (wallet or token address)
	ErrValidation = errors.New("validation error")

	// ErrUpstream marks a non-retryable indexing API failure or exhausted retries
	ErrUpstream = errors.New("upstream error")

	// ErrConflict marks a uniqueness violation while recording deposits
	ErrConflict = errors.New("deposit already recorded")

	// ErrStorage marks any other persistence failure
	ErrStorage = errors.New("storage error")

	// ErrNoWalletConfigured is returned to interactive callers that need a wallet
	ErrNoWalletConfigured = errors.New("no wallet configured")

	// ErrUserNotFound is returned when an operation targets an unknown user
	ErrUserNotFound = errors.New("user not found")

	// ErrSyncInProgress is returned when another sync holds the user's lease
	ErrSyncInProgress = errors.New("sync already in progress")
)

// UpstreamError describes a failed indexing API call
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", ErrUpstream, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", ErrUpstream, e.Err)
	}
	return ErrUpstream.Error()
}

// Unwrap lets errors.Is match both ErrUpstream and the underlying cause
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}
