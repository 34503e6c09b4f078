package models

import "time"

// FileState is the persisted parsing output for one uploaded file.
// The three maps are keyed by the global element ID in string form.
type FileState struct {
	TextElementOutput map[string]ElementRecord `json:"text_element_output"`
	ImageSummary      map[string]ElementRecord `json:"image_summary"`
	TableSummary      map[string]ElementRecord `json:"table_summary"`

	ParsingProcessed     bool   `json:"parsing_processed"`
	VectorstoreProcessed bool   `json:"vectorstore_processed"`
	ProcessingUID        string `json:"processing_uid"`
}

// NewFileState returns an empty file state with allocated maps.
func NewFileState() FileState {
	return FileState{
		TextElementOutput: make(map[string]ElementRecord),
		ImageSummary:      make(map[string]ElementRecord),
		TableSummary:      make(map[string]ElementRecord),
	}
}

// IngestionState maps saved filenames to their parsing outputs. Process-wide;
// mutated only through the state store's single writer.
type IngestionState map[string]FileState

// ProcessingStatus is the lifecycle of one upload.
type ProcessingStatus string

const (
	StatusQueued     ProcessingStatus = "queued"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
	StatusNotFound   ProcessingStatus = "not_found"
	StatusPending    ProcessingStatus = "pending"
)

// FileMetadata is the per-file sidecar persisted next to the saved PDF.
type FileMetadata struct {
	FileID           string    `json:"file_id"`
	OriginalFilename string    `json:"original_filename"`
	SavedFilename    string    `json:"saved_filename"`
	PageCount        int       `json:"page_count"`
	UploadTimestamp  time.Time `json:"upload_timestamp"`
}

// ChatSession is a persisted /query conversation.
type ChatSession struct {
	SessionID string        `json:"session_id" badgerhold:"key"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Turns     []SessionTurn `json:"turns"`
}

// SessionTurn is one question/answer exchange in a session.
type SessionTurn struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Worker    string    `json:"worker"`
	Timestamp time.Time `json:"timestamp"`
}
