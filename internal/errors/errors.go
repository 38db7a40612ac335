// Package errors consolidates error definitions for the whole pipeline.
//
// This package provides:
// - Sentinel errors for every error category in the pipeline
// - Category checking functions
// - Kind names for structured log lines
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors, one per pipeline error category
// ============================================================================

var (
	// ErrConfig marks a fatal configuration error. Config errors are only
	// raised before the loops start and terminate the process.
	ErrConfig = errors.New("configuration error")

	// ErrFetch marks a transient failure reaching the modem (network,
	// auth, expired session). The cycle is skipped and the next scheduled
	// tick is the retry.
	ErrFetch = errors.New("fetch error")

	// ErrParse marks status data in an unexpected shape. Not transient:
	// it usually means a firmware or page format change.
	ErrParse = errors.New("parse error")

	// ErrInsert marks a transient datastore failure. The batch is requeued
	// and the writer backs off.
	ErrInsert = errors.New("insert error")

	// ErrQueueOverflow marks a drop-oldest eviction. Never fatal, always
	// logged as data loss.
	ErrQueueOverflow = errors.New("queue overflow")
)

// ============================================================================
// Wrapping helpers
// ============================================================================

// Configf wraps a formatted message with ErrConfig.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...)
}

// Fetchf wraps a formatted message with ErrFetch.
func Fetchf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrFetch}, args...)...)
}

// Parsef wraps a formatted message with ErrParse.
func Parsef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrParse}, args...)...)
}

// Insertf wraps a formatted message with ErrInsert.
func Insertf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInsert}, args...)...)
}

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsConfig returns true if err is a configuration error.
func IsConfig(err error) bool { return errors.Is(err, ErrConfig) }

// IsFetch returns true if err is a fetch error.
func IsFetch(err error) bool { return errors.Is(err, ErrFetch) }

// IsParse returns true if err is a parse error.
func IsParse(err error) bool { return errors.Is(err, ErrParse) }

// IsInsert returns true if err is an insert error.
func IsInsert(err error) bool { return errors.Is(err, ErrInsert) }

// Kind returns the category name of err for structured log lines.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrInsert):
		return "insert"
	case errors.Is(err, ErrQueueOverflow):
		return "queue_overflow"
	default:
		return "unknown"
	}
}
