package utils

import (
	"fmt"

	"github.com/dl-alexandre/netdeploy/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth (10-19)
	ExitAuthRequired     = 10
	ExitPermissionDenied = 11
	// Network (30-39)
	ExitNetworkError = 30
	ExitTimeout      = 31
	ExitRateLimited  = 32
	// Validation (40-49)
	ExitInvalidArgument = 40
	ExitInvalidPath     = 41
	// Pipeline (70-79)
	ExitScanFailed           = 70
	ExitNegotiationFailed    = 71
	ExitInconsistentManifest = 72
	ExitUploadFailed         = 73
	ExitCancelled            = 80
	ExitUnknown              = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired         = "AUTH_REQUIRED"
	ErrCodePermissionDenied     = "PERMISSION_DENIED"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeNetworkError         = "NETWORK_ERROR"
	ErrCodeTimeout              = "TIMEOUT"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeInvalidArgument      = "INVALID_ARGUMENT"
	ErrCodeInvalidPath          = "INVALID_PATH"
	ErrCodeScanFailed           = "SCAN_FAILED"
	ErrCodeNegotiationFailed    = "NEGOTIATION_FAILED"
	ErrCodeInconsistentManifest = "INCONSISTENT_MANIFEST"
	ErrCodeUploadFailed         = "UPLOAD_FAILED"
	ErrCodeCancelled            = "CANCELLED"
	ErrCodeServiceError         = "SERVICE_ERROR"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodeUnknown              = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{err: types.CLIError{Code: code, Message: message}}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

var exitCodes = map[string]int{
	ErrCodeAuthRequired:         ExitAuthRequired,
	ErrCodePermissionDenied:     ExitPermissionDenied,
	ErrCodeNetworkError:         ExitNetworkError,
	ErrCodeTimeout:              ExitTimeout,
	ErrCodeRateLimited:          ExitRateLimited,
	ErrCodeInvalidArgument:      ExitInvalidArgument,
	ErrCodeInvalidPath:          ExitInvalidPath,
	ErrCodeScanFailed:           ExitScanFailed,
	ErrCodeNegotiationFailed:    ExitNegotiationFailed,
	ErrCodeInconsistentManifest: ExitInconsistentManifest,
	ErrCodeUploadFailed:         ExitUploadFailed,
	ErrCodeCancelled:            ExitCancelled,
}

// GetExitCode returns the process exit code for an error code.
func GetExitCode(errorCode string) int {
	if code, ok := exitCodes[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	Cause    error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError keeps the original error reachable through errors.Is/As.
func WrapAppError(cliErr types.CLIError, cause error) *AppError {
	return &AppError{CLIError: cliErr, Cause: cause}
}
