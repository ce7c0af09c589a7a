// Package apperr is the closed error taxonomy of the sync layers. Errors
// are tagged with a Kind where the remote call fails; substring matching
// against message text survives only as a fallback for errors that reach
// Classify untyped.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wb-go/wbf/retry"
)

type Kind string

const (
	KindAuth       Kind = "auth"
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindPermission Kind = "permission"
	KindNotFound   Kind = "notFound"
	KindServer     Kind = "server"
	KindUnknown    Kind = "unknown"
)

type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, retryable bool, cause error) *Error {
	return &Error{Kind: kind, Message: message, Retryable: retryable, Err: cause}
}

// FromStatus tags an error at the HTTP boundary from the response status
// and the service's error code.
func FromStatus(status int, code, desc string) *Error {
	switch {
	case status == http.StatusUnauthorized:
		return &Error{Kind: KindAuth, Message: desc}
	case status == http.StatusForbidden:
		return &Error{Kind: KindPermission, Message: "You do not have permission to perform this action."}
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Message: "The requested resource was not found."}
	case status == http.StatusConflict || status == http.StatusBadRequest:
		return &Error{Kind: KindValidation, Message: desc}
	case status >= 500:
		return &Error{Kind: KindServer, Message: "Server error. Please try again later.", Retryable: true}
	default:
		return &Error{Kind: KindUnknown, Message: fmt.Sprintf("%s (%s)", desc, code), Retryable: true}
	}
}

// Classify returns the tagged error unchanged and falls back to matching
// the lower-cased message text for anything untyped.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	message := strings.ToLower(err.Error())

	switch {
	case strings.Contains(message, "email not confirmed"):
		return Wrap(KindAuth, "Please check your email and click the confirmation link to activate your account.", false, err)
	case strings.Contains(message, "invalid login credentials"), strings.Contains(message, "invalid email or password"):
		return Wrap(KindAuth, "Invalid email or password. Please check your credentials and try again.", false, err)
	case strings.Contains(message, "already registered"):
		return Wrap(KindAuth, "An account with this email already exists. Try signing in instead.", false, err)
	case strings.Contains(message, "permission denied"), strings.Contains(message, "insufficient_privilege"):
		return Wrap(KindPermission, "You do not have permission to perform this action.", false, err)
	case strings.Contains(message, "not found"), strings.Contains(message, "no rows"):
		return Wrap(KindNotFound, "The requested resource was not found.", false, err)
	case strings.Contains(message, "network"), strings.Contains(message, "fetch"),
		strings.Contains(message, "connection refused"), strings.Contains(message, "timeout"):
		return Wrap(KindNetwork, "Network error. Please check your connection and try again.", true, err)
	case strings.Contains(message, "internal server error"), strings.Contains(message, "server error"):
		return Wrap(KindServer, "Server error. Please try again later.", true, err)
	case strings.Contains(message, "duplicate key value"), strings.Contains(message, "violates unique constraint"):
		return Wrap(KindValidation, "This item already exists. Please try a different value.", false, err)
	case strings.Contains(message, "violates foreign key constraint"):
		return Wrap(KindValidation, "Referenced item does not exist.", false, err)
	case strings.Contains(message, "violates check constraint"), strings.Contains(message, "violates not-null constraint"):
		return Wrap(KindValidation, "Invalid data provided. Please check your input.", false, err)
	default:
		return Wrap(KindUnknown, "An unexpected error occurred. Please try again.", true, err)
	}
}

func Message(err error) string {
	if err == nil {
		return ""
	}
	return Classify(err).Message
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable
}

// DefaultStrategy is the shared retry policy: three attempts, one second
// base delay, exponential growth.
var DefaultStrategy = retry.Strategy{Attempts: 3, Delay: time.Second, Backoff: 2}

// WithRetry runs fn with the given backoff strategy, stopping early on a
// non-retryable error.
func WithRetry(fn func() error, strat retry.Strategy) error {
	var permanent error
	err := retry.Do(func() error {
		err := fn()
		if err != nil && !IsRetryable(err) {
			permanent = err
			return nil
		}
		return err
	}, strat)
	if permanent != nil {
		return permanent
	}
	return err
}
