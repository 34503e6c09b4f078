package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewFileID generates a unique uploaded-file ID with the "file_" prefix
// Format: file_<uuid>
func NewFileID() string {
	return "file_" + uuid.New().String()
}

// NewIngestionUID generates a per-ingestion identifier scoping all on-disk
// artifacts of one document processing run.
func NewIngestionUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewSessionID generates a chat session ID with the "sess_" prefix
func NewSessionID() string {
	return "sess_" + uuid.New().String()
}
