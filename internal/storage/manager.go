package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finqa/workbench/internal/models"
)

// Store holds the bytes of selected files until they are uploaded or removed.
type Store interface {
	Save(name, mediaType string, r io.Reader) (*models.StagedFile, error)
	Get(id string) (*models.StagedFile, error)
	Open(id string) (io.ReadCloser, error)
	List(limit int) ([]*models.StagedFile, error)
	Delete(id string) error
	GetFilePath(id string) (string, error)
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu         sync.RWMutex
	stagingDir string
	maxSize    int64
	files      map[string]*models.StagedFile
}

// NewLocalStore creates a new LocalStore. maxSize <= 0 disables the size check.
func NewLocalStore(stagingDir string, maxSize int64) (*LocalStore, error) {
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	return &LocalStore{
		stagingDir: stagingDir,
		maxSize:    maxSize,
		files:      make(map[string]*models.StagedFile),
	}, nil
}

// ErrTooLarge is returned when a file exceeds the configured maximum size.
var ErrTooLarge = fmt.Errorf("file exceeds maximum size")

// Save writes a file into the staging directory.
func (s *LocalStore) Save(name, mediaType string, r io.Reader) (*models.StagedFile, error) {
	id := uuid.New().String()
	path := filepath.Join(s.stagingDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	size, err := io.Copy(f, src)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if s.maxSize > 0 && size > s.maxSize {
		os.Remove(path)
		return nil, fmt.Errorf("%s: %w (%d bytes)", name, ErrTooLarge, s.maxSize)
	}

	info := &models.StagedFile{
		ID:        id,
		Name:      name,
		MediaType: mediaType,
		Size:      size,
		StagedAt:  time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.StagedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}

	return info, nil
}

// Open returns a reader over the staged bytes.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	path, err := s.GetFilePath(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// List returns the most recently staged files.
func (s *LocalStore) List(limit int) ([]*models.StagedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.StagedFile, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].StagedAt.After(list[j].StagedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a file from staging.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("file not found: %s", id)
	}

	path := filepath.Join(s.stagingDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// GetFilePath returns the absolute path to a staged file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("file not found: %s", id)
	}

	return filepath.Join(s.stagingDir, id), nil
}

// Purge removes leftover files from a previous run. Staged bytes never
// outlive the process that selected them.
func (s *LocalStore) Purge() (int, error) {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		return 0, fmt.Errorf("reading staging directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, live := s.files[e.Name()]; live {
			continue
		}
		if err := os.Remove(filepath.Join(s.stagingDir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
