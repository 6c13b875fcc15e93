package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	Category    string         `json:"category,omitempty"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	ChunkCount  int            `json:"chunk_count"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DisplayTitle is what answers cite when referring to the document.
func (d *Document) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Filename
}

type DocumentEventType string

const (
	DocumentIngested DocumentEventType = "document.ingested"
	DocumentUpdated  DocumentEventType = "document.updated"
	DocumentDeleted  DocumentEventType = "document.deleted"
)

// DocumentEvent travels over the message queue between the API and the worker.
type DocumentEvent struct {
	Type       DocumentEventType `json:"type"`
	DocumentID string            `json:"document_id"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// InvalidatesCache reports whether cached answers citing the document must be dropped.
func (e DocumentEvent) InvalidatesCache() bool {
	return e.Type == DocumentUpdated || e.Type == DocumentDeleted
}
