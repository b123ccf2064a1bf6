package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/finqa/workbench/internal/chat"
	"github.com/finqa/workbench/internal/models"
	"github.com/finqa/workbench/internal/upload"
)

// DefaultMaxWorkspaces limits concurrent workspaces to bound staged bytes.
const DefaultMaxWorkspaces = 50

// KeepAliveWindow is how long a touched workspace is protected from cleanup.
const KeepAliveWindow = 5 * time.Minute

// ErrAtCapacity is returned by Create when every workspace is busy.
var ErrAtCapacity = errors.New("too many active sessions")

// Client is the remote QA service as seen by a workspace.
type Client interface {
	upload.Uploader
	chat.Chatter
}

// Options configures the workspaces a Manager creates.
type Options struct {
	MaxWorkspaces int
	Upload        upload.Options
	Chat          chat.Options
}

// Workspace is one browser session: a file list and a conversation.
type Workspace struct {
	ID        string
	Uploads   *upload.Controller
	Chat      *chat.Controller
	CreatedAt time.Time

	lastAccessed time.Time
}

// Busy reports whether a batch or turn is still awaiting the service.
func (w *Workspace) Busy() bool {
	return w.Uploads.State().InFlight > 0 || w.Chat.State().Pending
}

// Info summarizes the workspace.
func (w *Workspace) Info(lastAccessed time.Time) models.WorkspaceInfo {
	us := w.Uploads.State()
	cs := w.Chat.State()
	return models.WorkspaceInfo{
		ID:            w.ID,
		CreatedAt:     w.CreatedAt,
		LastAccessed:  lastAccessed,
		FileCount:     len(us.Entries),
		PendingFiles:  us.Count(models.FileStatusPending),
		UploadsActive: us.InFlight,
		MessageCount:  len(cs.Messages),
		TurnPending:   cs.Pending,
	}
}

// Manager handles active workspaces.
type Manager struct {
	workspaces map[string]*Workspace
	mu         sync.RWMutex
	client     Client
	files      upload.FileStore
	opts       Options
	closing    sync.WaitGroup
}

// NewManager creates a workspace manager sharing one client and staging store.
func NewManager(client Client, files upload.FileStore, opts Options) *Manager {
	if opts.MaxWorkspaces <= 0 {
		opts.MaxWorkspaces = DefaultMaxWorkspaces
	}
	return &Manager{
		workspaces: make(map[string]*Workspace),
		client:     client,
		files:      files,
		opts:       opts,
	}
}

// Create starts a new workspace, evicting the least recently used idle one
// when at capacity.
func (m *Manager) Create() (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.workspaces) >= m.opts.MaxWorkspaces {
		if !m.evictOldestLocked() {
			return nil, ErrAtCapacity
		}
	}

	now := time.Now()
	ws := &Workspace{
		ID:           uuid.New().String(),
		Uploads:      upload.NewController(m.client, m.files, m.opts.Upload),
		Chat:         chat.NewController(m.client, m.opts.Chat),
		CreatedAt:    now,
		lastAccessed: now,
	}
	m.workspaces[ws.ID] = ws
	log.Infof("[Manager] Created workspace %s (%d active)", ws.ID[:8], len(m.workspaces))
	return ws, nil
}

// evictOldestLocked removes the least recently accessed idle workspace.
func (m *Manager) evictOldestLocked() bool {
	idle := make([]*Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		if !ws.Busy() {
			idle = append(idle, ws)
		}
	}
	if len(idle) == 0 {
		return false
	}
	sort.Slice(idle, func(i, j int) bool {
		return idle[i].lastAccessed.Before(idle[j].lastAccessed)
	})
	victim := idle[0]
	m.removeLocked(victim)
	log.Infof("[Manager] Evicted workspace %s to stay within %d", victim.ID[:8], m.opts.MaxWorkspaces)
	return true
}

// Get returns a workspace by ID.
func (m *Manager) Get(id string) (*Workspace, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws, ok := m.workspaces[id]
	return ws, ok
}

// Touch updates the LastAccessed timestamp so cleanup skips the workspace.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, ok := m.workspaces[id]
	if !ok {
		return false
	}
	ws.lastAccessed = time.Now()
	return true
}

// Info returns a summary of one workspace.
func (m *Manager) Info(id string) (models.WorkspaceInfo, bool) {
	m.mu.RLock()
	ws, ok := m.workspaces[id]
	var last time.Time
	if ok {
		last = ws.lastAccessed
	}
	m.mu.RUnlock()

	if !ok {
		return models.WorkspaceInfo{}, false
	}
	return ws.Info(last), true
}

// List summarizes every workspace, most recently used first.
func (m *Manager) List() []models.WorkspaceInfo {
	m.mu.RLock()
	type item struct {
		ws   *Workspace
		last time.Time
	}
	items := make([]item, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		items = append(items, item{ws, ws.lastAccessed})
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].last.After(items[j].last) })
	infos := make([]models.WorkspaceInfo, 0, len(items))
	for _, it := range items {
		infos = append(infos, it.ws.Info(it.last))
	}
	return infos
}

// Len returns the number of active workspaces.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workspaces)
}

// Delete ends a workspace. Entries are dropped and staged bytes released once
// any in-flight work has resolved; the caller does not wait for that.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, ok := m.workspaces[id]
	if !ok {
		return false
	}
	m.removeLocked(ws)
	log.Infof("[Manager] Deleted workspace %s", id[:min(8, len(id))])
	return true
}

func (m *Manager) removeLocked(ws *Workspace) {
	delete(m.workspaces, ws.ID)
	m.closing.Add(1)
	go func() {
		defer m.closing.Done()
		ws.Uploads.Close()
		ws.Chat.Close()
	}()
}

// CleanupIdle removes workspaces not accessed within maxAge. Workspaces with
// a batch or turn in flight, or touched within KeepAliveWindow, are kept.
func (m *Manager) CleanupIdle(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-KeepAliveWindow)

	removed := 0
	for _, ws := range m.workspaces {
		if ws.Busy() {
			continue
		}
		if ws.lastAccessed.After(keepAliveCutoff) || ws.lastAccessed.After(cutoff) {
			continue
		}
		m.removeLocked(ws)
		removed++
		log.Infof("[Manager] Cleaned up idle workspace %s (last accessed: %s ago)",
			ws.ID[:8], time.Since(ws.lastAccessed).Round(time.Second))
	}
	return removed
}

// Close ends every workspace and waits until in-flight work has resolved.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, ws := range m.workspaces {
		m.removeLocked(ws)
	}
	m.mu.Unlock()
	m.closing.Wait()
}
