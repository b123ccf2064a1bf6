// Package upload tracks selected files and drives batch ingestion requests.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/finqa/workbench/internal/models"
	"github.com/finqa/workbench/internal/notify"
	"github.com/finqa/workbench/internal/ragclient"
)

var (
	ErrNoPendingItems    = errors.New("no pending files to upload")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEntryNotFound     = errors.New("file entry not found")

	errNothingSent = errors.New("selected files could not be read")
)

// Uploader sends one batch to the QA service.
type Uploader interface {
	Upload(ctx context.Context, files []ragclient.UploadFile) ([]ragclient.FileResult, error)
}

// FileStore holds the bytes behind each entry's Ref.
type FileStore interface {
	Open(id string) (io.ReadCloser, error)
	Delete(id string) error
}

// Candidate is a file offered for selection.
type Candidate struct {
	Name      string
	MediaType string
	Size      int64
	Ref       string
}

// SelectResult reports what Select kept and what it rejected.
type SelectResult struct {
	Accepted []models.FileEntry `json:"accepted"`
	Rejected []Candidate        `json:"-"`
	Skipped  int                `json:"skipped"`
	Notice   string             `json:"notice,omitempty"`
}

// Options configures a Controller.
type Options struct {
	AcceptedType string // Media type allowed into the list
	TypeLabel    string // Short name used in notices, e.g. "PDF"
}

// Controller owns the list of selected files and their lifecycle.
type Controller struct {
	mu       sync.Mutex
	state    State
	client   Uploader
	files    FileStore
	opts     Options
	watchers *notify.Broadcaster[State]
	inflight sync.WaitGroup
}

// NewController creates an upload controller with an empty list.
func NewController(client Uploader, files FileStore, opts Options) *Controller {
	if opts.AcceptedType == "" {
		opts.AcceptedType = "application/pdf"
	}
	if opts.TypeLabel == "" {
		opts.TypeLabel = "PDF"
	}
	return &Controller{
		state:    State{Entries: []models.FileEntry{}},
		client:   client,
		files:    files,
		opts:     opts,
		watchers: notify.NewBroadcaster[State](),
	}
}

// State returns the current upload state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns the current state and a channel of later states.
func (c *Controller) Subscribe() (State, <-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, cancel := c.watchers.Subscribe()
	return c.state, ch, cancel
}

// apply runs the reducer and publishes the result. Caller holds c.mu.
func (c *Controller) apply(ev Event) {
	c.state = Reduce(c.state, ev)
	c.watchers.Publish(c.state)
}

// Select validates candidates and appends the accepted ones as pending.
// Rejected candidates never enter the list; they are counted in one notice.
func (c *Controller) Select(candidates []Candidate) SelectResult {
	res := SelectResult{Accepted: []models.FileEntry{}}
	for _, cand := range candidates {
		if !c.accepts(cand.MediaType) {
			res.Rejected = append(res.Rejected, cand)
			continue
		}
		res.Accepted = append(res.Accepted, models.NewFileEntry(uuid.New().String(), cand.Name, cand.MediaType, cand.Ref, cand.Size))
	}
	res.Skipped = len(res.Rejected)
	if res.Skipped > 0 {
		res.Notice = fmt.Sprintf("Skipped %d non-%s files.", res.Skipped, c.opts.TypeLabel)
	}

	c.mu.Lock()
	c.apply(Selected{Entries: res.Accepted, Notice: res.Notice})
	c.mu.Unlock()

	return res
}

func (c *Controller) accepts(mediaType string) bool {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		mt = strings.TrimSpace(mediaType)
	}
	return strings.EqualFold(mt, c.opts.AcceptedType)
}

// Remove drops an entry. An uploading entry cannot be removed: its outcome
// still needs a home.
func (c *Controller) Remove(id string) error {
	c.mu.Lock()
	entry, ok := c.state.Entry(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("remove %s: %w", id, ErrEntryNotFound)
	}
	if entry.Status == models.FileStatusUploading {
		c.mu.Unlock()
		return fmt.Errorf("remove %s while uploading: %w", entry.Name, ErrInvalidTransition)
	}
	c.apply(Removed{ID: id})
	c.mu.Unlock()

	if entry.Status == models.FileStatusPending {
		c.release(entry.Ref)
	}
	return nil
}

// Reset drops every entry that is not part of an in-flight batch.
func (c *Controller) Reset() {
	c.mu.Lock()
	var refs []string
	for _, e := range c.state.Entries {
		if e.Status == models.FileStatusPending {
			refs = append(refs, e.Ref)
		}
	}
	c.apply(Cleared{})
	c.mu.Unlock()

	for _, ref := range refs {
		c.release(ref)
	}
}

// Submit snapshots every pending entry, marks it uploading and sends the
// snapshot as one batch. The returned Batch resolves when the request does.
// Entries selected after Submit returns are not part of this batch.
func (c *Controller) Submit(ctx context.Context) (*Batch, error) {
	c.mu.Lock()
	var ids []string
	for _, e := range c.state.Entries {
		if e.Status == models.FileStatusPending {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		c.mu.Unlock()
		return nil, ErrNoPendingItems
	}

	batchID := uuid.New().String()
	c.apply(BatchStarted{BatchID: batchID, EntryIDs: ids, Notice: NoticeUploading})

	snapshot := make([]models.FileEntry, 0, len(ids))
	for _, e := range c.state.Entries {
		if e.BatchID == batchID {
			snapshot = append(snapshot, e)
		}
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	batch := newBatch(batchID, snapshot)
	log.Infof("[Batch %s] Submitting %d files", batchID[:8], len(snapshot))

	// In-flight requests are not cancellable; only the client timeout ends them.
	go c.run(context.WithoutCancel(ctx), batch)

	return batch, nil
}

func (c *Controller) run(ctx context.Context, b *Batch) {
	defer c.inflight.Done()

	patches, err := c.execute(ctx, b)
	notice := batchNotice(err)

	c.mu.Lock()
	c.apply(BatchResolved{BatchID: b.ID, Patches: patches, Notice: notice})
	c.mu.Unlock()

	for _, e := range b.Entries {
		c.release(e.Ref)
	}

	if err != nil {
		log.Warnf("[Batch %s] Failed: %v", b.ID[:8], err)
	} else {
		log.Infof("[Batch %s] Resolved %d files", b.ID[:8], len(patches))
	}
	b.resolve(Outcome{Patches: patches, Notice: notice, Err: err})
}

// execute performs the request and reconciles its outcome against the
// snapshot. Every snapshot entry receives exactly one patch.
func (c *Controller) execute(ctx context.Context, b *Batch) (patches []Patch, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Batch %s] PANIC recovered: %v", b.ID[:8], r)
			err = fmt.Errorf("upload panicked: %v", r)
			patches = Reconcile(b.Entries, nil, &ragclient.TransportError{Op: "upload", Err: err})
		}
	}()

	var (
		files   []ragclient.UploadFile
		sent    []models.FileEntry
		readers []io.Closer
	)
	for _, e := range b.Entries {
		rc, openErr := c.files.Open(e.Ref)
		if openErr != nil {
			log.Warnf("[Batch %s] Cannot read %s: %v", b.ID[:8], e.Name, openErr)
			patches = append(patches, Patch{EntryID: e.ID, Status: models.FileStatusFailed, Message: "Error: " + openErr.Error()})
			continue
		}
		readers = append(readers, rc)
		files = append(files, ragclient.UploadFile{Name: e.Name, ContentType: e.MediaType, Body: rc})
		sent = append(sent, e)
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	if len(sent) == 0 {
		return patches, errNothingSent
	}

	results, err := c.client.Upload(ctx, files)
	for _, r := range results {
		if r.ProcessingTime > 0 {
			log.Debugf("[Batch %s] %s processed in %.2fs", b.ID[:8], r.Filename, r.ProcessingTime)
		}
	}
	return append(patches, Reconcile(sent, results, err)...), err
}

func (c *Controller) release(ref string) {
	if ref == "" || c.files == nil {
		return
	}
	if err := c.files.Delete(ref); err != nil {
		log.Debugf("[Upload] Release of staged file %s: %v", ref, err)
	}
}

// Wait blocks until every submitted batch has resolved.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close waits for in-flight batches, releases staged bytes and ends subscriptions.
func (c *Controller) Close() {
	c.inflight.Wait()
	c.Reset()
	c.watchers.Close()
}
