package privacy

import (
	"errors"
	"fmt"
)

// ErrorKind is the inspectable class of a privacy-layer error
type ErrorKind string

const (
	KindConfiguration  ErrorKind = "configuration"
	KindValidation     ErrorKind = "validation"
	KindInsufficient   ErrorKind = "insufficient_data"
	KindExpiredKey     ErrorKind = "expired_key"
	KindRevokedKey     ErrorKind = "revoked_key"
	KindAuthentication ErrorKind = "authentication"
	KindInternal       ErrorKind = "internal"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	ErrorSeverityLow      ErrorSeverity = "low"      // Non-critical, operation can continue
	ErrorSeverityMedium   ErrorSeverity = "medium"   // Important, may affect functionality
	ErrorSeverityHigh     ErrorSeverity = "high"     // Critical, operation should stop
	ErrorSeverityCritical ErrorSeverity = "critical" // Startup must abort
)

// Error represents a structured error in the privacy library
type Error struct {
	Kind     ErrorKind              `json:"kind"`
	Severity ErrorSeverity          `json:"severity"`
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Details  string                 `json:"details,omitempty"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Kind, e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on kind, and on code when the target carries one. This lets
// callers test against the per-kind sentinels (ErrValidation) as well as the
// specific ones (ErrDuplicateShareIndex).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func (e *Error) clone() *Error {
	newError := &Error{
		Kind:     e.Kind,
		Severity: e.Severity,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    e.Cause,
		Context:  make(map[string]interface{}, len(e.Context)+1),
	}
	for k, v := range e.Context {
		newError.Context[k] = v
	}
	return newError
}

// WithContext adds context information to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	newError := e.clone()
	newError.Context[key] = value
	return newError
}

// WithCause sets the underlying cause of the error
func (e *Error) WithCause(cause error) *Error {
	newError := e.clone()
	newError.Cause = cause
	return newError
}

// WithDetails returns a copy carrying a formatted detail string
func (e *Error) WithDetails(format string, args ...interface{}) *Error {
	newError := e.clone()
	newError.Details = fmt.Sprintf(format, args...)
	return newError
}

// IsFatal reports whether the error must abort initialization
func (e *Error) IsFatal() bool {
	return e.Severity == ErrorSeverityCritical
}

// NewError creates a new error
func NewError(kind ErrorKind, severity ErrorSeverity, code, message string) *Error {
	return &Error{
		Kind:     kind,
		Severity: severity,
		Code:     code,
		Message:  message,
		Context:  make(map[string]interface{}),
	}
}

// Kind sentinels
var (
	ErrConfiguration  = &Error{Kind: KindConfiguration}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrInsufficient   = &Error{Kind: KindInsufficient}
	ErrExpiredKey     = &Error{Kind: KindExpiredKey}
	ErrRevokedKey     = &Error{Kind: KindRevokedKey}
	ErrAuthentication = &Error{Kind: KindAuthentication}
)

// Configuration Errors
var (
	ErrCurveConstantMismatch = NewError(
		KindConfiguration, ErrorSeverityCritical, "CURVE_CONSTANT_MISMATCH",
		"curve constants disagree across representations")

	ErrInvalidGenerator = NewError(
		KindConfiguration, ErrorSeverityCritical, "INVALID_GENERATOR",
		"generator is not a valid point of the expected order")

	ErrGeneratorDerivation = NewError(
		KindConfiguration, ErrorSeverityCritical, "GENERATOR_DERIVATION_EXHAUSTED",
		"hash-to-curve did not find a point within the attempt bound")

	ErrInvalidField = NewError(
		KindConfiguration, ErrorSeverityCritical, "INVALID_FIELD",
		"field modulus is unsupported")

	ErrNotMDS = NewError(
		KindConfiguration, ErrorSeverityCritical, "MATRIX_NOT_MDS",
		"mixing matrix has a singular square submatrix")

	ErrUnsupportedWidth = NewError(
		KindConfiguration, ErrorSeverityHigh, "UNSUPPORTED_WIDTH",
		"permutation width is not supported")

	ErrInvalidConfig = NewError(
		KindConfiguration, ErrorSeverityHigh, "INVALID_CONFIG",
		"configuration parameters are inconsistent")
)

// Validation Errors
var (
	ErrInvalidPointLength = NewError(
		KindValidation, ErrorSeverityHigh, "INVALID_POINT_LENGTH",
		"point encoding has the wrong length")

	ErrPointNotOnCurve = NewError(
		KindValidation, ErrorSeverityHigh, "POINT_NOT_ON_CURVE",
		"point does not satisfy the curve equation")

	ErrPointNotInSubgroup = NewError(
		KindValidation, ErrorSeverityHigh, "POINT_NOT_IN_SUBGROUP",
		"point is not in the prime-order subgroup")

	ErrPointAtInfinity = NewError(
		KindValidation, ErrorSeverityHigh, "POINT_AT_INFINITY",
		"point at infinity is not allowed here")

	ErrNonCanonical = NewError(
		KindValidation, ErrorSeverityHigh, "NON_CANONICAL_ENCODING",
		"encoded value is not reduced modulo the field prime")

	ErrFieldMismatch = NewError(
		KindValidation, ErrorSeverityHigh, "FIELD_MISMATCH",
		"element belongs to a different field")

	ErrZeroInverse = NewError(
		KindValidation, ErrorSeverityHigh, "ZERO_INVERSE",
		"zero has no multiplicative inverse")

	ErrDegenerateCommitment = NewError(
		KindValidation, ErrorSeverityMedium, "DEGENERATE_COMMITMENT",
		"commitment is the identity point; retry with a fresh blinding")

	ErrInvalidShareIndex = NewError(
		KindValidation, ErrorSeverityHigh, "INVALID_SHARE_INDEX",
		"share index must be in [1,255]")

	ErrDuplicateShareIndex = NewError(
		KindValidation, ErrorSeverityHigh, "DUPLICATE_SHARE_INDEX",
		"share index appears more than once")

	ErrInconsistentShares = NewError(
		KindValidation, ErrorSeverityHigh, "INCONSISTENT_SHARES",
		"shares do not belong to the same split")

	ErrShareCommitmentMismatch = NewError(
		KindValidation, ErrorSeverityHigh, "SHARE_COMMITMENT_MISMATCH",
		"share does not open the split commitment")

	ErrInvalidThreshold = NewError(
		KindValidation, ErrorSeverityHigh, "INVALID_THRESHOLD",
		"threshold parameters are invalid")

	ErrInvalidInput = NewError(
		KindValidation, ErrorSeverityMedium, "INVALID_INPUT",
		"input is malformed")

	ErrInvalidState = NewError(
		KindValidation, ErrorSeverityMedium, "INVALID_STATE_TRANSITION",
		"operation is not allowed in the current state")

	ErrUnauthorized = NewError(
		KindValidation, ErrorSeverityHigh, "UNAUTHORIZED",
		"caller is not authorized for this operation")

	ErrInvalidSignature = NewError(
		KindValidation, ErrorSeverityHigh, "INVALID_SIGNATURE",
		"signature does not verify")

	ErrDuplicateVote = NewError(
		KindValidation, ErrorSeverityMedium, "DUPLICATE_VOTE",
		"holder has already voted")

	ErrVotingClosed = NewError(
		KindValidation, ErrorSeverityMedium, "VOTING_WINDOW_CLOSED",
		"voting window has expired")

	ErrNotFound = NewError(
		KindValidation, ErrorSeverityMedium, "NOT_FOUND",
		"record not found")

	ErrKeyMismatch = NewError(
		KindValidation, ErrorSeverityHigh, "KEY_MISMATCH",
		"private key does not match the recorded public key")

	ErrWeakExportParameters = NewError(
		KindValidation, ErrorSeverityHigh, "WEAK_EXPORT_PARAMETERS",
		"key export parameters are below the configured minimum")
)

// Insufficient data errors
var (
	ErrInsufficientShares = NewError(
		KindInsufficient, ErrorSeverityHigh, "INSUFFICIENT_SHARES",
		"not enough shares")

	ErrInsufficientApprovals = NewError(
		KindInsufficient, ErrorSeverityMedium, "INSUFFICIENT_APPROVALS",
		"approvals below threshold")
)

// Key state and authentication errors
var (
	ErrKeyExpired = NewError(
		KindExpiredKey, ErrorSeverityMedium, "KEY_EXPIRED",
		"viewing key has expired; decryption refused")

	ErrKeyRevoked = NewError(
		KindRevokedKey, ErrorSeverityHigh, "KEY_REVOKED",
		"viewing key has been revoked")

	ErrAuthenticationFailed = NewError(
		KindAuthentication, ErrorSeverityHigh, "AUTHENTICATION_FAILED",
		"ciphertext failed authentication")
)

// Internal Errors
var (
	ErrRandomnessGeneration = NewError(
		KindInternal, ErrorSeverityCritical, "RANDOMNESS_GENERATION_FAILED",
		"failed to generate secure randomness")

	ErrCryptographicOperation = NewError(
		KindInternal, ErrorSeverityHigh, "CRYPTOGRAPHIC_OPERATION_FAILED",
		"cryptographic operation failed")
)

// IsKind checks if an error belongs to a specific kind
func IsKind(err error, kind ErrorKind) bool {
	var privErr *Error
	if errors.As(err, &privErr) {
		return privErr.Kind == kind
	}
	return false
}

// IsFatalError reports whether err must abort startup
func IsFatalError(err error) bool {
	var privErr *Error
	if errors.As(err, &privErr) {
		return privErr.IsFatal()
	}
	return false
}

// GetErrorContext extracts context from a privacy error
func GetErrorContext(err error) map[string]interface{} {
	var privErr *Error
	if errors.As(err, &privErr) {
		return privErr.Context
	}
	return nil
}
