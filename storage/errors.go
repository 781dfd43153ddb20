package storage

import "errors"

// Storage error constants
var (
	// ErrAlertNotFound is returned when an enriched alert is not found
	ErrAlertNotFound = errors.New("enriched alert not found")

	// ErrDuplicateAlert is returned when an alert ID is inserted twice.
	// Enrichment records are append-only; a duplicate ID is a bug upstream.
	ErrDuplicateAlert = errors.New("enriched alert already stored")
)
