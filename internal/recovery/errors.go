package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Category classifies an error for retry and recovery decisions
type Category string

func (c Category) String() string {
	return string(c)
}

const (
	CategoryDriverSetup Category = "driver_setup"
	CategoryNetwork     Category = "network"
	CategoryRateLimit   Category = "rate_limit"
	CategoryTimeout     Category = "timeout"
	CategoryParsing     Category = "parsing"
	CategoryDatabase    Category = "database"
	CategoryValidation  Category = "validation"
	CategoryUnknown     Category = "unknown"
)

// ErrCircuitOpen is returned when a circuit breaker rejects a call
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Error attaches a category and the failing operation to an error
type Error struct {
	Category Category
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with a category. A nil err stays nil.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Op: op, Err: err}
}

// Errorf builds a categorized error from a format string
func Errorf(category Category, format string, args ...any) error {
	return &Error{Category: category, Err: fmt.Errorf(format, args...)}
}

// CategoryOf returns the category carried by err, or CategoryUnknown
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	return CategoryUnknown
}

func categorize(err error, fallback Category) Category {
	if c := CategoryOf(err); c != CategoryUnknown {
		return c
	}
	if fallback == "" {
		return CategoryUnknown
	}
	return fallback
}

// ErrorType returns the Go type name of the innermost categorized error
func ErrorType(err error) string {
	var e *Error
	for errors.As(err, &e) {
		err = e.Err
	}
	if err == nil {
		return "nil"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
