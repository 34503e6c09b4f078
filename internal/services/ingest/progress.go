package ingest

import "github.com/kstocklab/finsight/internal/models"

// ProgressEvent is a single pipeline status update for one file.
type ProgressEvent struct {
	FileID   string                  `json:"file_id"`
	Filename string                  `json:"filename"`
	Stage    string                  `json:"stage"`
	Status   models.ProcessingStatus `json:"status"`
	Message  string                  `json:"message,omitempty"`
	Percent  int                     `json:"percent"`
}

// ProgressPublisher receives pipeline progress events. Implementations must
// be safe for concurrent use and must not block the pipeline.
type ProgressPublisher interface {
	Publish(event ProgressEvent)
}

// NoopPublisher discards progress events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ProgressEvent) {}
