package models

import "time"

// WorkspaceInfo describes one browser session hosting an upload list and a conversation.
type WorkspaceInfo struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	LastAccessed  time.Time `json:"lastAccessed"`
	FileCount     int       `json:"fileCount"`
	PendingFiles  int       `json:"pendingFiles"`
	UploadsActive int       `json:"uploadsActive"`
	MessageCount  int       `json:"messageCount"`
	TurnPending   bool      `json:"turnPending"`
}
