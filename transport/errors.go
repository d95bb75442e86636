package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-appshell/core"
	goerrors "github.com/goliatone/go-errors"
)

// Failure kinds reported in the httpErrorType attribute.
const (
	ErrorTypeResponse = "api-response-error"
	ErrorTypeRequest  = "api-request-error"
	ErrorTypeConfig   = "api-request-config-error"
)

// Attribute keys carried by normalized request errors.
const (
	AttrErrorType      = "httpErrorType"
	AttrStatus         = "httpErrorStatus"
	AttrRequestURL     = "httpErrorRequestUrl"
	AttrRequestMethod  = "httpErrorRequestMethod"
	AttrResponseData   = "httpErrorResponseData"
	AttrMessage        = "httpErrorMessage"
	metadataRequest    = "request"
	metadataResponse   = "response"
	metadataFailureKey = "failure_kind"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ShellErrorBadInput
	case goerrors.CategoryInternal:
		return core.ShellErrorInternal
	default:
		return core.ShellErrorTransport
	}
}

// RequestMetadata returns error metadata that lets RequestFromError recover req.
func RequestMetadata(req *core.Request) map[string]any {
	if req == nil {
		return map[string]any{}
	}
	return map[string]any{metadataRequest: req}
}

// RequestFromError returns the request an error was raised for, when it was kept.
func RequestFromError(err error) (*core.Request, bool) {
	value, ok := metadataValue(err, metadataRequest)
	if !ok {
		return nil, false
	}
	req, ok := value.(*core.Request)
	return req, ok && req != nil
}

// ResponseFromError returns the response attached to a non-2xx failure.
func ResponseFromError(err error) (*core.Response, bool) {
	value, ok := metadataValue(err, metadataResponse)
	if !ok {
		return nil, false
	}
	res, ok := value.(*core.Response)
	return res, ok && res != nil
}

// FailureKind classifies err as a response, request or configuration failure.
func FailureKind(err error) string {
	if value, ok := metadataValue(err, metadataFailureKey); ok {
		if kind, ok := value.(string); ok && kind != "" {
			return kind
		}
	}
	if _, ok := ResponseFromError(err); ok {
		return ErrorTypeResponse
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryBadInput {
		return ErrorTypeConfig
	}
	return ErrorTypeRequest
}

// StatusFromError returns the HTTP status of the failed response, or 0.
func StatusFromError(err error) int {
	if res, ok := ResponseFromError(err); ok {
		return res.StatusCode
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if status, ok := richErr.Metadata[AttrStatus].(int); ok {
			return status
		}
	}
	return 0
}

// NormalizeError builds the normalized request error for err. The result keeps
// err as its source and never loses the attached request.
func NormalizeError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var existing *goerrors.Error
	if goerrors.As(err, &existing) {
		if _, done := existing.Metadata[AttrErrorType]; done {
			return existing
		}
	}

	kind := FailureKind(err)
	attrs := map[string]any{AttrErrorType: kind}
	method, requestURL := "", ""
	if req, ok := RequestFromError(err); ok {
		method = strings.ToUpper(strings.TrimSpace(req.Method))
		requestURL = req.URL
		attrs[AttrRequestURL] = requestURL
		attrs[AttrRequestMethod] = method
		attrs[metadataRequest] = req
	}

	status := 0
	var message string
	switch kind {
	case ErrorTypeResponse:
		res, _ := ResponseFromError(err)
		if res != nil {
			status = res.StatusCode
			attrs[AttrResponseData] = string(res.Body)
			attrs[metadataResponse] = res
		}
		attrs[AttrStatus] = status
		message = fmt.Sprintf("transport: %s %s responded %d %s", method, requestURL, status, http.StatusText(status))
	case ErrorTypeConfig:
		message = fmt.Sprintf("transport: request configuration error: %s", rootMessage(err))
	default:
		message = fmt.Sprintf("transport: %s %s failed without a response: %s", method, requestURL, rootMessage(err))
	}
	attrs[AttrMessage] = message

	category := goerrors.CategoryExternal
	code := http.StatusBadGateway
	if status > 0 {
		category = goerrors.HTTPStatusToCategory(status)
		code = status
	} else if kind == ErrorTypeConfig {
		category = goerrors.CategoryBadInput
		code = http.StatusBadRequest
	}

	textCode := core.ShellErrorTransport
	if existing != nil && existing.TextCode == core.ShellErrorTokenAcquisition {
		textCode = existing.TextCode
	}

	normalized := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode).
		WithMetadata(attrs)
	normalized.Source = err
	return normalized
}

// Attributes returns the httpError* attributes of a normalized error, suitable
// for a logging call.
func Attributes(err error) map[string]any {
	attrs := map[string]any{}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return attrs
	}
	for _, key := range []string{AttrErrorType, AttrStatus, AttrRequestURL, AttrRequestMethod, AttrResponseData, AttrMessage} {
		if value, ok := richErr.Metadata[key]; ok {
			attrs[key] = value
		}
	}
	return attrs
}

func metadataValue(err error, key string) (any, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return nil, false
	}
	value, ok := richErr.Metadata[key]
	return value, ok
}

func rootMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Source != nil {
			return richErr.Source.Error()
		}
		return richErr.Message
	}
	return err.Error()
}
