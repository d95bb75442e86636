package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ShellErrorBadInput              = "SHELL_BAD_INPUT"
	ShellErrorNotConfigured         = "SHELL_NOT_CONFIGURED"
	ShellErrorContractViolation     = "SHELL_CONTRACT_VIOLATION"
	ShellErrorCapabilityUnsupported = "SHELL_CAPABILITY_UNSUPPORTED"
	ShellErrorTokenAcquisition      = "SHELL_TOKEN_ACQUISITION"
	ShellErrorTransport             = "SHELL_TRANSPORT"
	ShellErrorUnauthorized          = "SHELL_UNAUTHORIZED"
	ShellErrorForbidden             = "SHELL_FORBIDDEN"
	ShellErrorExternalFailure       = "SHELL_EXTERNAL_FAILURE"
	ShellErrorRateLimited           = "SHELL_RATE_LIMITED"
	ShellErrorInternal              = "SHELL_INTERNAL_ERROR"
)

var ErrNotConfigured = errors.New("core: service not configured")

// NotConfiguredError reports access to an empty service slot. It matches
// ErrNotConfigured through errors.Is.
func NotConfiguredError(kind Kind) error {
	return goerrors.Wrap(ErrNotConfigured, goerrors.CategoryInternal,
		fmt.Sprintf("core: %s service is not configured", kind)).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ShellErrorNotConfigured).
		WithMetadata(map[string]any{"service_kind": string(kind)})
}

func ContractViolationError(role string, missing []string) error {
	return goerrors.New(
		fmt.Sprintf("core: %s implementation is missing required operations: %s", role, strings.Join(missing, ", ")),
		goerrors.CategoryValidation,
	).
		WithCode(http.StatusBadRequest).
		WithTextCode(ShellErrorContractViolation).
		WithMetadata(map[string]any{"role": role, "missing": append([]string(nil), missing...)})
}

func CapabilityUnsupportedError(kind Kind, operation string) error {
	return goerrors.New(
		fmt.Sprintf("core: %s service does not support %s", kind, operation),
		goerrors.CategoryOperation,
	).
		WithCode(http.StatusNotImplemented).
		WithTextCode(ShellErrorCapabilityUnsupported).
		WithMetadata(map[string]any{"service_kind": string(kind), "operation": operation})
}

func BadInputError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ShellErrorBadInput)
}

// IsNotConfigured reports whether err came from an empty service slot.
func IsNotConfigured(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == ShellErrorNotConfigured
	}
	return false
}

// MapError converts any error into the shell error envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureShellErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not configured"):
		return newShellError(err.Error(), goerrors.CategoryInternal, ShellErrorNotConfigured)
	case strings.Contains(msg, "missing required"):
		return newShellError(err.Error(), goerrors.CategoryValidation, ShellErrorContractViolation)
	case strings.Contains(msg, "does not support"):
		return newShellError(err.Error(), goerrors.CategoryOperation, ShellErrorCapabilityUnsupported)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newShellError(err.Error(), goerrors.CategoryBadInput, ShellErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureShellErrorEnvelope(mapped)
}

func newShellError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureShellErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureShellErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = shellHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = DefaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func DefaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ShellErrorBadInput
	case goerrors.CategoryValidation:
		return ShellErrorContractViolation
	case goerrors.CategoryAuth:
		return ShellErrorUnauthorized
	case goerrors.CategoryAuthz:
		return ShellErrorForbidden
	case goerrors.CategoryOperation:
		return ShellErrorCapabilityUnsupported
	case goerrors.CategoryExternal:
		return ShellErrorExternalFailure
	case goerrors.CategoryRateLimit:
		return ShellErrorRateLimited
	default:
		return ShellErrorInternal
	}
}

func shellHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
