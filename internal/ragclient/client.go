// Package ragclient is the transport to the remote question-answering service.
package ragclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Default endpoint paths of the QA service.
const (
	DefaultUploadPath    = "/api/upload"
	DefaultChatPath      = "/api/chat"
	DefaultDocumentsPath = "/api/documents"
	DefaultHealthPath    = "/"

	// DefaultFieldName is the multipart field shared by every file in a batch.
	DefaultFieldName = "files"
)

// Options configures a Client. Zero values fall back to the defaults.
type Options struct {
	UploadPath    string
	ChatPath      string
	DocumentsPath string
	HealthPath    string
	FieldName     string
	Timeout       time.Duration
}

// Client is a stateless HTTP client for the QA service.
type Client struct {
	baseURL    string
	opts       Options
	httpClient *http.Client
}

// NewClient creates a new QA service client.
func NewClient(baseURL string, opts Options) *Client {
	if opts.UploadPath == "" {
		opts.UploadPath = DefaultUploadPath
	}
	if opts.ChatPath == "" {
		opts.ChatPath = DefaultChatPath
	}
	if opts.DocumentsPath == "" {
		opts.DocumentsPath = DefaultDocumentsPath
	}
	if opts.HealthPath == "" {
		opts.HealthPath = DefaultHealthPath
	}
	if opts.FieldName == "" {
		opts.FieldName = DefaultFieldName
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		opts:    opts,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Upload sends one multipart batch and returns the per-file results.
// A non-2xx response yields *ServiceError; no response yields *TransportError.
func (c *Client) Upload(ctx context.Context, files []UploadFile) ([]FileResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := writer.CreatePart(filePartHeader(c.opts.FieldName, f))
		if err != nil {
			return nil, fmt.Errorf("failed to create form file %s: %w", f.Name, err)
		}
		if f.Body != nil {
			if _, err := io.Copy(part, f.Body); err != nil {
				return nil, fmt.Errorf("failed to write form file %s: %w", f.Name, err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.opts.UploadPath, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	var results []FileResult
	if err := c.do(httpReq, "upload", &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Chat sends one question with its prior turns and returns the answer.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req.ChatHistory == nil {
		req.ChatHistory = []HistoryMessage{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.opts.ChatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var resp ChatResponse
	if err := c.do(httpReq, "chat", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Documents lists the documents the service has ingested.
func (c *Client) Documents(ctx context.Context) ([]Document, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.opts.DocumentsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	var resp DocumentsResponse
	if err := c.do(httpReq, "documents", &resp); err != nil {
		return nil, err
	}
	if resp.Documents == nil {
		resp.Documents = []Document{}
	}
	return resp.Documents, nil
}

// Health probes the service root.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.opts.HealthPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	var resp HealthResponse
	if err := c.do(httpReq, "health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do executes the request and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp.StatusCode, parseDetail(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &ServiceError{StatusCode: resp.StatusCode, Detail: "invalid response body: " + err.Error()}
	}
	return nil
}

// parseDetail extracts the service's "detail" field, falling back to raw text.
func parseDetail(data []byte) string {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		return strings.TrimSpace(string(data))
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}
	return string(body.Detail)
}

// IsTransport reports whether err means no response was obtained.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func filePartHeader(field string, f UploadFile) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(field), escapeQuotes(f.Name)))
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	return h
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
