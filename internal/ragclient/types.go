package ragclient

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
)

// UploadFile is one file in a batch upload request.
type UploadFile struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// FileResult is the service's per-file outcome for a batch upload.
// A result without status "failed" is a success carrying ChunksCount.
type FileResult struct {
	Filename       string  `json:"filename"`
	Status         string  `json:"status,omitempty"`
	Error          string  `json:"error,omitempty"`
	ChunksCount    int     `json:"chunks_count,omitempty"`
	ProcessingTime float64 `json:"processing_time,omitempty"`
}

// Failed reports whether the service rejected this file.
func (r FileResult) Failed() bool {
	return r.Status == "failed"
}

// HistoryMessage is one prior turn sent as conversational context.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a chat turn request.
type ChatRequest struct {
	Question    string           `json:"question"`
	ChatHistory []HistoryMessage `json:"chat_history"`
}

// ChatResponse is the service's answer to a chat turn.
type ChatResponse struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources,omitempty"`
	ProcessingTime float64  `json:"processing_time,omitempty"`
}

// Source is a retrieved chunk backing an answer.
type Source struct {
	Content  string         `json:"content"`
	Metadata SourceMetadata `json:"metadata"`
}

// SourceMetadata locates a chunk within its origin document.
type SourceMetadata struct {
	Source string   `json:"source"`
	Chunk  ChunkRef `json:"chunk"`
}

// ChunkRef is a chunk locator that the service may send as a number or a string.
type ChunkRef string

// UnmarshalJSON accepts numbers, strings and null.
func (c *ChunkRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ChunkRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*c = ChunkRef(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return err
	}
	*c = ChunkRef(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// Document is one ingested document as listed by the service.
type Document struct {
	Filename    string `json:"filename"`
	UploadDate  string `json:"upload_date"`
	ChunksCount int    `json:"chunks_count"`
	Status      string `json:"status"`
}

// DocumentsResponse is the body of the documents listing.
type DocumentsResponse struct {
	Documents []Document `json:"documents"`
}

// HealthResponse is the body of the service root endpoint.
type HealthResponse struct {
	Message string `json:"message"`
}

// errorBody is the service's non-2xx body. Detail is usually a string but
// validation failures carry a structured value.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}
