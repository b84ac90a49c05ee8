package domain

import (
	"errors"
	"fmt"
)

// Category classifies an error uniformly across all tools and the agent.
// Recoverable categories drive re-planning; fatal ones surface to the
// caller as error_message / RUN_ERROR.
type Category string

const (
	CategoryInvalidTicker     Category = "INVALID_TICKER"
	CategoryDateRangeTooLarge Category = "DATE_RANGE_TOO_LARGE"
	CategoryTooManyTickers    Category = "TOO_MANY_TICKERS"
	CategoryRateLimit         Category = "RATE_LIMIT"
	CategoryISSTimeout        Category = "ISS_TIMEOUT"
	CategoryISS5xx            Category = "ISS_5XX"
	CategoryValidation        Category = "VALIDATION_ERROR"
	CategoryUnknownTool       Category = "UNKNOWN_TOOL"
	CategoryUnknown           Category = "UNKNOWN"
)

// fatalCategories are terminal in a plan: no heuristic rewrite can recover
// them. ISS_TIMEOUT and ISS_5XX become fatal only after retries are
// exhausted, which is when the provider surfaces them.
var fatalCategories = map[Category]bool{
	CategoryISSTimeout:  true,
	CategoryISS5xx:      true,
	CategoryValidation:  true,
	CategoryUnknownTool: true,
	CategoryUnknown:     true,
}

// IsFatal reports whether the category terminates plan execution.
func (c Category) IsFatal() bool {
	return fatalCategories[c]
}

// Error is a categorized domain error. Field is set for validation
// failures pointing at the offending input field.
type Error struct {
	Category Category
	Field    string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Category, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a categorized error with a formatted message.
func NewError(cat Category, format string, args ...any) *Error {
	return &Error{Category: cat, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError builds a VALIDATION_ERROR pointing at field.
func NewValidationError(field, format string, args ...any) *Error {
	return &Error{Category: CategoryValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a category to an underlying error.
func WrapError(cat Category, err error, message string) *Error {
	return &Error{Category: cat, Message: message, Err: err}
}

// Categorize extracts the Category from err, walking the wrap chain.
// Unclassified errors map to UNKNOWN.
func Categorize(err error) Category {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Category
	}
	return CategoryUnknown
}
