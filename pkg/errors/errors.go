package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents HTML parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTimeout represents per-request timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeCancelled represents user-initiated cancellation
	ErrorTypeCancelled ErrorType = "cancelled"
	// ErrorTypeStorage represents persistence errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// MarketError represents a crawler/monitor-specific error
type MarketError struct {
	Type      ErrorType
	Component string
	Message   string
	Err       error
	Time      time.Time
}

// Error implements the error interface
func (e *MarketError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *MarketError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error may be retried on the next scan
func (e *MarketError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	case ErrorTypeRateLimit, ErrorTypeCancelled:
		return false
	default:
		return false
	}
}

// New creates a new MarketError
func New(errType ErrorType, component, message string, err error) *MarketError {
	return &MarketError{
		Type:      errType,
		Component: component,
		Message:   message,
		Err:       err,
		Time:      time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(component, message string, err error) *MarketError {
	return New(ErrorTypeNetwork, component, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(component, message string, err error) *MarketError {
	return New(ErrorTypeParsing, component, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(component string, retryAfter string) *MarketError {
	message := "rate limited"
	if retryAfter != "" {
		message = fmt.Sprintf("rate limited; retry after %s", retryAfter)
	}
	return New(ErrorTypeRateLimit, component, message, nil)
}

// NewTimeout creates a new timeout error
func NewTimeout(component string, limit time.Duration) *MarketError {
	return New(ErrorTypeTimeout, component, fmt.Sprintf("timed out after %v", limit), nil)
}

// NewCancelled creates a new cancellation error
func NewCancelled(component string) *MarketError {
	return New(ErrorTypeCancelled, component, "cancelled", nil)
}

// NewStorage creates a new persistence error
func NewStorage(component, message string, err error) *MarketError {
	return New(ErrorTypeStorage, component, message, err)
}

// NewValidation creates a new validation error
func NewValidation(component, message string) *MarketError {
	return New(ErrorTypeValidation, component, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *MarketError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// TypeOf returns the error type of err, or an empty string for foreign errors
func TypeOf(err error) ErrorType {
	var me *MarketError
	if stderrors.As(err, &me) {
		return me.Type
	}
	return ""
}

// IsRateLimit reports whether err carries a rate-limit classification
func IsRateLimit(err error) bool {
	return TypeOf(err) == ErrorTypeRateLimit
}

// IsTimeout reports whether err carries a timeout classification
func IsTimeout(err error) bool {
	return TypeOf(err) == ErrorTypeTimeout
}

// IsCancelled reports whether err carries a cancellation classification
func IsCancelled(err error) bool {
	return TypeOf(err) == ErrorTypeCancelled
}
