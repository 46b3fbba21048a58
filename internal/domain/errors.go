package domain

import "fmt"

// ErrorCode classifies a rejected operation.
type ErrorCode string

const (
	CodeInsufficientFunds   ErrorCode = "INSUFFICIENT_FUNDS"
	CodeInsufficientShares  ErrorCode = "INSUFFICIENT_SHARES"
	CodePositionNotFound    ErrorCode = "POSITION_NOT_FOUND"
	CodeMaxPositionExceeded ErrorCode = "MAX_POSITION_EXCEEDED"
	CodeTradeLimitReached   ErrorCode = "TRADE_LIMIT_REACHED"
	CodeInvalidTrade        ErrorCode = "INVALID_TRADE"
	CodeInvalidAction       ErrorCode = "INVALID_ACTION"
	CodeInvalidTicker       ErrorCode = "INVALID_TICKER"
	CodeInvalidQuantity     ErrorCode = "INVALID_QUANTITY"
	CodeInvalidPrice        ErrorCode = "INVALID_PRICE"
	CodeInvalidAgent        ErrorCode = "INVALID_AGENT"
	CodeAgentNotFound       ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentInactive       ErrorCode = "AGENT_INACTIVE"
	CodeNoCredits           ErrorCode = "NO_CREDITS"
	CodeDecisionSource      ErrorCode = "DECISION_SOURCE_ERROR"
	CodePriceUnavailable    ErrorCode = "PRICE_UNAVAILABLE"
	CodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	CodeForbidden           ErrorCode = "FORBIDDEN"
	CodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
)

// Error is a typed rejection carrying a machine-readable code and the
// figures a caller needs to explain it.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates an Error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// With attaches a detail value and returns e.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is matching.
var (
	ErrInsufficientFunds   = &Error{Code: CodeInsufficientFunds}
	ErrInsufficientShares  = &Error{Code: CodeInsufficientShares}
	ErrPositionNotFound    = &Error{Code: CodePositionNotFound}
	ErrMaxPositionExceeded = &Error{Code: CodeMaxPositionExceeded}
	ErrTradeLimitReached   = &Error{Code: CodeTradeLimitReached}
	ErrAgentNotFound       = &Error{Code: CodeAgentNotFound}
	ErrAgentInactive       = &Error{Code: CodeAgentInactive}
	ErrNoCredits           = &Error{Code: CodeNoCredits}
	ErrDecisionSource      = &Error{Code: CodeDecisionSource}
	ErrPriceUnavailable    = &Error{Code: CodePriceUnavailable}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized}
	ErrForbidden           = &Error{Code: CodeForbidden}
)
