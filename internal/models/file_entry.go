package models

import "time"

// FileStatus represents the lifecycle state of a selected file.
type FileStatus string

const (
	FileStatusPending   FileStatus = "pending"
	FileStatusUploading FileStatus = "uploading"
	FileStatusSuccess   FileStatus = "success"
	FileStatusFailed    FileStatus = "failed"
)

// Terminal reports whether no further transition is allowed for the status.
func (s FileStatus) Terminal() bool {
	return s == FileStatusSuccess || s == FileStatusFailed
}

// FileEntry is one user-selected candidate for ingestion.
type FileEntry struct {
	ID         string     `json:"id" msgpack:"id"`
	Name       string     `json:"name" msgpack:"name"`
	MediaType  string     `json:"mediaType" msgpack:"mediaType"`
	Size       int64      `json:"size" msgpack:"size"`
	Ref        string     `json:"ref" msgpack:"ref"` // Staging store ID
	Status     FileStatus `json:"status" msgpack:"status"`
	Message    string     `json:"message,omitempty" msgpack:"message,omitempty"`
	BatchID    string     `json:"batchId,omitempty" msgpack:"batchId,omitempty"` // Set while a batch owns the entry
	SelectedAt time.Time  `json:"selectedAt" msgpack:"selectedAt"`
}

// NewFileEntry creates a FileEntry in pending status.
func NewFileEntry(id, name, mediaType, ref string, size int64) FileEntry {
	return FileEntry{
		ID:         id,
		Name:       name,
		MediaType:  mediaType,
		Size:       size,
		Ref:        ref,
		Status:     FileStatusPending,
		SelectedAt: time.Now(),
	}
}
