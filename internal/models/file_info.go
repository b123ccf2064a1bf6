package models

import "time"

// StagedFile represents the bytes of a selected file held until upload.
type StagedFile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MediaType string    `json:"mediaType"`
	Size      int64     `json:"size"`
	StagedAt  time.Time `json:"stagedAt"`
}
