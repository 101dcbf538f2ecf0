package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// Sentinel errors for the license lifecycle engine. Handlers map these to
// RFC 7807 responses via MapLifecycleError; nothing below the transport
// layer knows about HTTP status codes.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrNoLicenseKey         = errors.New("license key not provisioned")
	ErrProviderFailure      = errors.New("license provider failure")
	ErrPersistenceFailure   = errors.New("profile persistence failure")
	ErrQuotaExhausted       = errors.New("hwid reset quota exhausted")
	ErrCooldownActive       = errors.New("hwid reset cooldown active")
	ErrConcurrentUpdate     = errors.New("concurrent profile update")
)

// ProviderError wraps ErrProviderFailure with the provider's own message so
// callers can surface it to operators without parsing strings.
type ProviderError struct {
	Op      string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider %s failed: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("provider %s failed", e.Op)
}

func (e *ProviderError) Unwrap() error { return ErrProviderFailure }

// NewProviderError builds a ProviderError for a failed remote operation.
// Either message (provider-reported) or err (transport) may be empty.
func NewProviderError(op, message string, err error) *ProviderError {
	return &ProviderError{Op: op, Message: message, Err: err}
}

// CooldownError carries the remaining wait until the next reset is allowed.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("hwid reset cooldown active, retry in %s", e.Remaining)
}

func (e *CooldownError) Unwrap() error { return ErrCooldownActive }

// HoursRemaining reports the remaining wait rounded up to the nearest hour,
// never less than one.
func (e *CooldownError) HoursRemaining() int {
	hours := int(e.Remaining / time.Hour)
	if e.Remaining%time.Hour != 0 {
		hours++
	}
	if hours < 1 {
		hours = 1
	}
	return hours
}

// PersistenceError marks a repository write that failed after the provider
// mutation already succeeded. It is always surfaced distinctly from provider
// failures because it implies an inconsistency needing operator reconciliation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed after provider success during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistenceFailure }

// MapLifecycleError maps engine errors to HTTP problem details
func MapLifecycleError(err error, traceID, instance string) render.Renderer {
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return NewProblemDetails(
			http.StatusUnauthorized,
			"/errors/authentication-failed",
			"Authentication Failed",
			"The provided credential is missing, invalid or expired.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "AUTHENTICATION_FAILED")

	case errors.Is(err, ErrProfileNotFound):
		return NewProblemDetails(
			http.StatusNotFound,
			"/errors/profile-not-found",
			"Profile Not Found",
			"No profile exists for the authenticated user.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "PROFILE_NOT_FOUND")

	case errors.Is(err, ErrNoLicenseKey):
		return NewProblemDetails(
			http.StatusNotFound,
			"/errors/license-key-not-found",
			"License Key Not Provisioned",
			"No license key has been provisioned for this user. Provision a key first.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "LICENSE_KEY_NOT_FOUND")

	case errors.Is(err, ErrQuotaExhausted):
		return NewProblemDetails(
			http.StatusTooManyRequests,
			"/errors/reset-quota-exhausted",
			"Reset Quota Exhausted",
			"No HWID resets remaining. Contact support to restore your quota.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "RESET_QUOTA_EXHAUSTED").
			WithExtension("retryable", false)

	case errors.Is(err, ErrCooldownActive):
		pd := NewProblemDetails(
			http.StatusTooManyRequests,
			"/errors/reset-cooldown-active",
			"Reset Cooldown Active",
			"A HWID reset was performed recently. Please wait before trying again.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "RESET_COOLDOWN_ACTIVE")
		var cd *CooldownError
		if errors.As(err, &cd) {
			pd.WithExtension("retry_after_hours", cd.HoursRemaining())
		}
		return pd

	case errors.Is(err, ErrProviderFailure):
		pd := NewProblemDetails(
			http.StatusBadGateway,
			"/errors/provider-failure",
			"License Provider Failure",
			"The license provider rejected the operation or was unreachable.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "PROVIDER_FAILURE")
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Message != "" {
			pd.WithExtension("provider_message", pe.Message)
		}
		return pd

	case errors.Is(err, ErrPersistenceFailure):
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/persistence-failure",
			"Persistence Failure",
			"The operation succeeded upstream but could not be recorded. Support has been notified.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "PERSISTENCE_FAILURE").
			WithExtension("requires_reconciliation", true)

	case errors.Is(err, ErrValidationFailed):
		return NewProblemDetails(
			http.StatusBadRequest,
			"/errors/validation-failed",
			"Validation Failed",
			err.Error(),
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "VALIDATION_FAILED")

	default:
		// Generic error: never leak internal detail to the caller
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/internal-error",
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}
