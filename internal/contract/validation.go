// Copyright 2026 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"os"
	"strconv"
)

const (
	// DefaultUploadLimitBytes is the baseline cap for uploaded archives.
	DefaultUploadLimitBytes = 512 << 20 // 512 MiB

	// QueryMaxBytes is the maximum length of a semantic search query.
	QueryMaxBytes = 8 << 10 // 8 KiB
)

// UploadLimitBytes returns the effective cap on uploaded archive size.
// Controlled via env INGEST_SIZE_CAP; falls back to DefaultUploadLimitBytes.
func UploadLimitBytes() int64 {
	if v := os.Getenv("INGEST_SIZE_CAP"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return DefaultUploadLimitBytes
}

// ValidationResult represents the result of a validation check.
type ValidationResult struct {
	OK      bool
	Message string
}

// ValidateUploadSize checks an archive upload against the size cap.
func ValidateUploadSize(size int64) *ValidationResult {
	if size <= 0 {
		return &ValidationResult{OK: false, Message: "empty upload"}
	}
	if size > UploadLimitBytes() {
		return &ValidationResult{OK: false, Message: "archive exceeds size cap"}
	}
	return &ValidationResult{OK: true}
}

// ValidateQuery checks a semantic search query string.
func ValidateQuery(query string) *ValidationResult {
	if query == "" {
		return &ValidationResult{OK: false, Message: "query is empty"}
	}
	if len(query) > QueryMaxBytes {
		return &ValidationResult{OK: false, Message: "query exceeds maximum length"}
	}
	return &ValidationResult{OK: true}
}
