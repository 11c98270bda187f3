// Package engine provides the core types and operations for the provio
// deployment engine. It implements the probe -> select -> execute -> poll
// workflow that converges an ordered step sequence onto a provider
// idempotently.
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: network timeouts, temporary service unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting or quota exhaustion reported
	// by the provider. Retried like transient failures.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates a resource state conflict, typically another
	// operation still in flight on the same resource.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid arguments, permission denied, quota denied.
	ErrorClassPermanent ErrorClass = "permanent"
)

// DeployError represents a classified error with deployment context.
type DeployError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Step is the step name that produced the error, if applicable.
	Step string `json:"step,omitempty"`

	// Resource is the resource name involved, if applicable.
	Resource string `json:"resource,omitempty"`

	// Action is the provider action being invoked when the error occurred.
	Action string `json:"action,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *DeployError) Error() string {
	var ctx []string
	if e.Step != "" {
		ctx = append(ctx, "step="+e.Step)
	}
	if e.Resource != "" {
		ctx = append(ctx, "resource="+e.Resource)
	}
	if e.Action != "" {
		ctx = append(ctx, "action="+e.Action)
	}
	if len(ctx) > 0 {
		return fmt.Sprintf("[%s] %s (%s): %s", e.Class, e.Message, strings.Join(ctx, ", "), e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *DeployError) Unwrap() error {
	return e.Err
}

// ErrorClass returns the class as a plain string for metrics labels.
func (e *DeployError) ErrorClass() string {
	return string(e.Class)
}

// unwrapMessage returns the error message from the underlying error chain.
func (e *DeployError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *DeployError) Is(target error) bool {
	t, ok := target.(*DeployError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *DeployError {
	return &DeployError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *DeployError {
	return &DeployError{
		Class:   ErrorClassThrottled,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *DeployError {
	return &DeployError{
		Class:   ErrorClassConflict,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *DeployError {
	return &DeployError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// NewProbeError creates the error returned when a resource probe itself fails.
// A failed probe is never interpreted as "resource absent": treating it that
// way would create duplicates on the next run.
func NewProbeError(resource string, err error) *DeployError {
	return &DeployError{
		Class:    ErrorClassPermanent,
		Code:     ErrCodeProbeFailed,
		Message:  "resource probe failed",
		Resource: resource,
		Err:      err,
	}
}

// NewAmbiguousResourceError creates the error returned when a probe finds more
// than one matching resource and no operator is available to choose. The
// message enumerates every candidate so the operator can disambiguate by hand.
func NewAmbiguousResourceError(resource string, candidates []ResourceReference) *DeployError {
	lines := make([]string, 0, len(candidates))
	for i, c := range candidates {
		lines = append(lines, fmt.Sprintf("  [%d] %s (id=%s)", i+1, c.Name, c.ID))
	}
	return &DeployError{
		Class:    ErrorClassPermanent,
		Code:     ErrCodeAmbiguous,
		Message:  fmt.Sprintf("%d resources match; rerun interactively or narrow the probe filter:\n%s", len(candidates), strings.Join(lines, "\n")),
		Resource: resource,
		Details:  map[string]interface{}{"count": len(candidates)},
	}
}

// NewMissingCredentialError creates the error returned when the credential
// resolution chain is exhausted without producing a value.
func NewMissingCredentialError(name string, sources []string) *DeployError {
	return &DeployError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodeMissingCredential,
		Message: fmt.Sprintf("credential %q not found (consulted: %s)", name, strings.Join(sources, ", ")),
		Details: map[string]interface{}{"credential": name, "sources": sources},
	}
}

// NewSecretVerificationError creates the error returned when a published
// secret does not read back byte-identical. Never retried.
func NewSecretVerificationError(secretName string) *DeployError {
	return &DeployError{
		Class:    ErrorClassPermanent,
		Code:     ErrCodeSecretVerification,
		Message:  fmt.Sprintf("secret %q failed read-back verification after write", secretName),
		Resource: secretName,
	}
}

// NewStepGraphError creates the error returned when static validation of the
// step sequence fails before anything executes.
func NewStepGraphError(message string) *DeployError {
	return &DeployError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodeStepGraph,
		Message: message,
	}
}

// NewPollTimeoutError creates the error recorded when convergence polling
// exhausts its attempt bound. It is reported as a warning, not a failure;
// Remediation carries the command the operator can run to check later.
func NewPollTimeoutError(step, remediation string, attempts int) *DeployError {
	return &DeployError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodePollTimeout,
		Message: fmt.Sprintf("resource did not converge within %d poll attempts", attempts),
		Step:    step,
		Details: map[string]interface{}{"remediation": remediation, "attempts": attempts},
	}
}

// NewPolicyError creates the error returned when a deployment gate policy
// denies the plan.
func NewPolicyError(message string) *DeployError {
	return &DeployError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodePolicyDenied,
		Message: message,
	}
}

// WithStep adds step context to an error.
func (e *DeployError) WithStep(step string) *DeployError {
	e.Step = step
	return e
}

// WithResource adds resource context to an error.
func (e *DeployError) WithResource(resource string) *DeployError {
	e.Resource = resource
	return e
}

// WithAction adds provider action context to an error.
func (e *DeployError) WithAction(action string) *DeployError {
	e.Action = action
	return e
}

// WithCode adds an error code to an error.
func (e *DeployError) WithCode(code string) *DeployError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *DeployError) WithDetail(key string, value interface{}) *DeployError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried.
// Transient, throttled, and conflict errors are retryable.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err) || IsConflict(err)
}

// CodeOf returns the error code carried by err, or the empty string when err
// is not a classified deployment error.
func CodeOf(err error) string {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ClassOf returns the error class carried by err, or the empty string when
// err is not a classified deployment error.
func ClassOf(err error) ErrorClass {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// Common error codes.
const (
	ErrCodeProbeFailed        = "PROBE_FAILED"
	ErrCodeAmbiguous          = "AMBIGUOUS_RESOURCE"
	ErrCodeMissingCredential  = "MISSING_CREDENTIAL"
	ErrCodeProviderFailed     = "PROVIDER_FAILED"
	ErrCodePollTimeout        = "POLL_TIMEOUT"
	ErrCodeSecretVerification = "SECRET_VERIFICATION_FAILED"
	ErrCodeStepGraph          = "INVALID_STEP_GRAPH"
	ErrCodePolicyDenied       = "POLICY_DENIED"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)
