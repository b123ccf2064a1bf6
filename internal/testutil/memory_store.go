// memory_store.go - In-memory staging store for tests
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finqa/workbench/internal/models"
)

// MemoryStore implements storage.Store without touching the filesystem.
type MemoryStore struct {
	files    map[string]*models.StagedFile
	fileData map[string][]byte
	openErr  map[string]error
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:    make(map[string]*models.StagedFile),
		fileData: make(map[string][]byte),
		openErr:  make(map[string]error),
	}
}

func (m *MemoryStore) Save(name, mediaType string, r io.Reader) (*models.StagedFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.SaveBytes(name, mediaType, data), nil
}

// SaveBytes stages data directly.
func (m *MemoryStore) SaveBytes(name, mediaType string, data []byte) *models.StagedFile {
	m.mu.Lock()
	defer m.mu.Unlock()

	file := &models.StagedFile{
		ID:        uuid.New().String(),
		Name:      name,
		MediaType: mediaType,
		Size:      int64(len(data)),
		StagedAt:  time.Now(),
	}
	m.files[file.ID] = file
	m.fileData[file.ID] = data
	return file
}

func (m *MemoryStore) Get(id string) (*models.StagedFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return nil, errors.New("file not found")
	}
	return file, nil
}

func (m *MemoryStore) Open(id string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.openErr[id]; err != nil {
		return nil, err
	}
	data, ok := m.fileData[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// FailOpen makes later Open calls for id return err.
func (m *MemoryStore) FailOpen(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr[id] = err
}

func (m *MemoryStore) List(limit int) ([]*models.StagedFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := make([]*models.StagedFile, 0, len(m.files))
	for _, file := range m.files {
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].StagedAt.After(files[j].StagedAt)
	})
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.files[id]; !exists {
		return errors.New("file not found")
	}
	delete(m.files, id)
	delete(m.fileData, id)
	return nil
}

func (m *MemoryStore) GetFilePath(id string) (string, error) {
	return "/mock/path/" + id, nil
}

// Len returns how many files are staged.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
