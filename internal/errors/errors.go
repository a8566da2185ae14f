// Package errors defines the application error taxonomy and its handling.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnsupportedToken = "UNSUPPORTED_TOKEN"
	CodeNoActiveQuote    = "NO_ACTIVE_QUOTE"
	CodeUpstream         = "UPSTREAM_ERROR"
	CodeNetwork          = "NETWORK_ERROR"
	CodeInvalidRecipient = "INVALID_RECIPIENT"
	CodeSubmission       = "SUBMISSION_ERROR"
	CodeSwapExecution    = "SWAP_EXECUTION_ERROR"
	CodeNoWallet         = "NO_WALLET"
	CodeState            = "STATE_ERROR"
	CodeRateLimit        = "RATE_LIMIT"
	CodeDatabase         = "DATABASE_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

const defaultUserMessage = "⚠️ Something went wrong. Please try again later."

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	// Details carries structured context for logs, e.g. the failed swap stage.
	Details map[string]string
	cause   error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// Is matches any *AppError with the same code, so sentinels like ErrNoActiveQuote work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithDetail returns e with key set in Details.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is checks.
var (
	ErrNoActiveQuote    = &AppError{Code: CodeNoActiveQuote}
	ErrUnsupportedToken = &AppError{Code: CodeUnsupportedToken}
	ErrUpstream         = &AppError{Code: CodeUpstream}
	ErrNetwork          = &AppError{Code: CodeNetwork}
	ErrInvalidRecipient = &AppError{Code: CodeInvalidRecipient}
	ErrSubmission       = &AppError{Code: CodeSubmission}
	ErrSwapExecution    = &AppError{Code: CodeSwapExecution}
	ErrNoWallet         = &AppError{Code: CodeNoWallet}
	ErrValidation       = &AppError{Code: CodeValidation}
)

// CodeOf returns the code of the first AppError in err's chain, or CodeInternal.
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr != nil {
		return appErr.Code
	}
	return CodeInternal
}

// NewValidationError reports malformed user input; msg is shown to the user as is.
func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: msg,
		Severity:    SeverityLow,
	}
}

func NewUnsupportedTokenError(symbol string, supported []string) *AppError {
	return &AppError{
		Code:        CodeUnsupportedToken,
		Message:     fmt.Sprintf("unsupported token %q", symbol),
		UserMessage: fmt.Sprintf("Token %s is not supported. Available: %s.", strings.ToUpper(symbol), strings.Join(supported, ", ")),
		Severity:    SeverityLow,
	}
}

func NewNoActiveQuoteError() *AppError {
	return &AppError{
		Code:        CodeNoActiveQuote,
		Message:     "no active swap quote",
		UserMessage: "No swap quote found. Please start the swap process again.",
		Severity:    SeverityLow,
	}
}

// NewUpstreamError reports a provider that answered with an unusable response.
func NewUpstreamError(api string, cause error) *AppError {
	return &AppError{
		Code:        CodeUpstream,
		Message:     fmt.Sprintf("upstream %s returned an unusable response", api),
		UserMessage: "⚠️ The service is temporarily unavailable. Please try again.",
		Severity:    SeverityMedium,
		Retryable:   false,
		cause:       cause,
	}
}

// NewNetworkError reports a transport failure talking to api.
func NewNetworkError(api string, cause error) *AppError {
	return &AppError{
		Code:        CodeNetwork,
		Message:     fmt.Sprintf("network error calling %s", api),
		UserMessage: "⚠️ Network problem, please try again.",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewInvalidRecipientError(address string, cause error) *AppError {
	return &AppError{
		Code:        CodeInvalidRecipient,
		Message:     fmt.Sprintf("invalid recipient %q", address),
		UserMessage: fmt.Sprintf("Invalid recipient address: %s", address),
		Severity:    SeverityLow,
		cause:       cause,
	}
}

func NewSubmissionError(cause error) *AppError {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}

	return &AppError{
		Code:        CodeSubmission,
		Message:     "transaction submission failed",
		UserMessage: fmt.Sprintf("Failed to send transaction: %s", reason),
		Severity:    SeverityMedium,
		cause:       cause,
	}
}

// NewSwapExecutionError reports a failed swap at stage. userMessage is stage specific.
func NewSwapExecutionError(stage, userMessage string, cause error) *AppError {
	if userMessage == "" {
		userMessage = "⚠️ Swap failed. Please try again later."
	}

	return (&AppError{
		Code:        CodeSwapExecution,
		Message:     fmt.Sprintf("swap failed at %s", stage),
		UserMessage: userMessage,
		Severity:    SeverityHigh,
		cause:       cause,
	}).WithDetail("stage", stage)
}

func NewNoWalletError() *AppError {
	return &AppError{
		Code:        CodeNoWallet,
		Message:     "user has no wallet",
		UserMessage: "You don't have a wallet yet! Create one by using the /start command.",
		Severity:    SeverityLow,
	}
}

func NewStateError(msg string) *AppError {
	return &AppError{
		Code:        CodeState,
		Message:     msg,
		UserMessage: "This action is not possible right now.",
		Severity:    SeverityMedium,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Please try again in %d seconds.", retryAfter),
		Severity:    SeverityLow,
	}
}

func NewDatabaseError(cause error) *AppError {
	return &AppError{
		Code:        CodeDatabase,
		Message:     "database error",
		UserMessage: defaultUserMessage,
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewInternalError(cause error) *AppError {
	return &AppError{
		Code:        CodeInternal,
		Message:     "internal error",
		UserMessage: defaultUserMessage,
		Severity:    SeverityCritical,
		cause:       cause,
	}
}
