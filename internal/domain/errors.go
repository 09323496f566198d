package domain

import (
	"context"
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrLimitReached     = fmt.Errorf("limit reached")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrDisabled         = fmt.Errorf("disabled")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrProviderError    = fmt.Errorf("provider error")
)

// Sentinel errors for configuration and storage.
var (
	ErrConfigLoad          = fmt.Errorf("failed to load configuration")
	ErrEncryption          = fmt.Errorf("encryption operation failed")
	ErrDecryption          = fmt.Errorf("decryption failed")
	ErrCredentialsNotFound = fmt.Errorf("device credentials not found")
	ErrRateLimit           = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid         = fmt.Errorf("authentication failed")
)

// Gateway errors.
var (
	ErrGatewayAuthFailed = fmt.Errorf("gateway authentication failed")
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrUnknownCommand    = fmt.Errorf("unknown command")
)

// Pairing error kinds. Every backend or network failure observed by the
// pairing flow is converted to exactly one of these before it reaches the
// coordinator or the wizard.
var (
	// ErrTransientIssue is a failed code issuance that will be retried.
	ErrTransientIssue = fmt.Errorf("pairing code issuance failed")
	// ErrPermanentConnection is reported once the issuance retry budget is spent.
	ErrPermanentConnection = fmt.Errorf("pairing: backend unreachable")
	// ErrActivationPending is the steady state while the user has not entered the code.
	ErrActivationPending = fmt.Errorf("pairing: activation pending")
	// ErrCodeExpired means the issued code outlived its lifetime.
	ErrCodeExpired = fmt.Errorf("pairing: code expired")
	// ErrActivation is any other failure while polling for activation.
	ErrActivation = fmt.Errorf("pairing: activation failed")
	// ErrCredentialPersist means credentials could not be written after a retry.
	ErrCredentialPersist = fmt.Errorf("pairing: credential persistence failed")
	// ErrPairingClosed is returned by operations on a shut down coordinator.
	ErrPairingClosed = fmt.Errorf("pairing: coordinator closed")

	// ErrRecognitionUnmatched is a wizard-local empty or unmatched answer.
	ErrRecognitionUnmatched = fmt.Errorf("setup: answer not recognized")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Coordinator.Start")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "pairing", "setup")
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrTransientIssue) || errors.Is(err, ErrRateLimit)
}

// ClassifyIssueError converts any failure of a code issuance call into
// ErrTransientIssue, keeping the original error in the chain for logging.
func ClassifyIssueError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientIssue) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientIssue, err)
}

// ClassifyActivationError converts a failure of an activation attempt into
// one of ErrActivationPending or ErrActivation. Context cancellation is kept
// as-is so that shutdown is not mistaken for a backend failure.
func ClassifyActivationError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrActivationPending), errors.Is(err, ErrActivation):
		return err
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrActivation, err)
	}
}
