// fake_service.go - In-process stand-in for the document QA service
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/finqa/workbench/internal/ragclient"
)

// FakeService serves the QA service endpoints from memory.
//
// Uploads succeed with one chunk per 4 bytes unless the filename contains
// "fail". Chat answers echo the question with a single source.
type FakeService struct {
	*httptest.Server

	mu        sync.Mutex
	documents []ragclient.Document
	questions []ragclient.ChatRequest
	uploads   int

	status int
	detail string
	delay  time.Duration
}

// NewFakeService starts a fake QA service. Callers must Close it.
func NewFakeService() *FakeService {
	f := &FakeService{}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, ragclient.HealthResponse{Message: "Document QA service is running"})
	})
	e.POST("/api/upload", f.handleUpload)
	e.POST("/api/chat", f.handleChat)
	e.GET("/api/documents", f.handleDocuments)

	f.Server = httptest.NewServer(e)
	return f
}

func (f *FakeService) failure(c echo.Context) (bool, error) {
	f.mu.Lock()
	status, detail, delay := f.status, f.detail, f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status == 0 {
		return false, nil
	}
	return true, c.JSON(status, map[string]string{"detail": detail})
}

func (f *FakeService) handleUpload(c echo.Context) error {
	if failed, err := f.failure(c); failed {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "expected multipart form"})
	}

	files := form.File["files"]
	results := make([]ragclient.FileResult, 0, len(files))
	for _, fh := range files {
		if strings.Contains(fh.Filename, "fail") {
			results = append(results, ragclient.FileResult{Filename: fh.Filename, Status: "failed", Error: "could not extract text"})
			continue
		}
		src, err := fh.Open()
		if err != nil {
			return err
		}
		n, _ := io.Copy(io.Discard, src)
		src.Close()

		chunks := int(n/4) + 1
		results = append(results, ragclient.FileResult{Filename: fh.Filename, Status: "success", ChunksCount: chunks, ProcessingTime: 0.01})

		f.mu.Lock()
		f.documents = append(f.documents, ragclient.Document{
			Filename:    fh.Filename,
			UploadDate:  time.Now().UTC().Format(time.RFC3339),
			ChunksCount: chunks,
			Status:      "processed",
		})
		f.mu.Unlock()
	}

	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()
	return c.JSON(http.StatusOK, results)
}

func (f *FakeService) handleChat(c echo.Context) error {
	if failed, err := f.failure(c); failed {
		return err
	}

	var req ragclient.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": "invalid body"})
	}

	f.mu.Lock()
	f.questions = append(f.questions, req)
	f.mu.Unlock()

	return c.JSON(http.StatusOK, ragclient.ChatResponse{
		Answer: fmt.Sprintf("Answer to: %s", req.Question),
		Sources: []ragclient.Source{{
			Content:  "excerpt",
			Metadata: ragclient.SourceMetadata{Source: "report.pdf", Chunk: "1"},
		}},
	})
}

func (f *FakeService) handleDocuments(c echo.Context) error {
	f.mu.Lock()
	docs := append([]ragclient.Document{}, f.documents...)
	f.mu.Unlock()
	return c.JSON(http.StatusOK, ragclient.DocumentsResponse{Documents: docs})
}

// Fail makes later upload and chat calls answer with status and detail.
// A zero status restores normal answers.
func (f *FakeService) Fail(status int, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.detail = detail
}

// SetDelay holds every later upload and chat answer for d.
func (f *FakeService) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Questions returns every chat request received so far.
func (f *FakeService) Questions() []ragclient.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ragclient.ChatRequest{}, f.questions...)
}

// Uploads returns how many upload requests were answered.
func (f *FakeService) Uploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}
