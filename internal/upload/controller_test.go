package upload

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finqa/workbench/internal/models"
	"github.com/finqa/workbench/internal/ragclient"
	"github.com/finqa/workbench/internal/testutil"
)

// pendingCall is one Upload invocation waiting for the test to answer it.
type pendingCall struct {
	names  []string
	bodies []string
	reply  chan reply
}

type reply struct {
	results []ragclient.FileResult
	err     error
}

// gatedUploader blocks every Upload until the test replies, so tests choose
// the order in which batches resolve.
type gatedUploader struct {
	calls chan *pendingCall
	count atomic.Int32
}

func newGatedUploader() *gatedUploader {
	return &gatedUploader{calls: make(chan *pendingCall, 8)}
}

func (g *gatedUploader) Upload(ctx context.Context, files []ragclient.UploadFile) ([]ragclient.FileResult, error) {
	g.count.Add(1)
	call := &pendingCall{reply: make(chan reply, 1)}
	for _, f := range files {
		data, _ := io.ReadAll(f.Body)
		call.names = append(call.names, f.Name)
		call.bodies = append(call.bodies, string(data))
	}
	g.calls <- call
	r := <-call.reply
	return r.results, r.err
}

func (g *gatedUploader) next(t *testing.T) *pendingCall {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upload call")
		return nil
	}
}

func waitBatch(t *testing.T, b *Batch) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := b.Wait(ctx)
	require.NoError(t, err)
	return out
}

func stage(store *testutil.MemoryStore, name, mediaType string) Candidate {
	f := store.SaveBytes(name, mediaType, []byte("%PDF-"+name))
	return Candidate{Name: name, MediaType: mediaType, Size: f.Size, Ref: f.ID}
}

func statusOf(t *testing.T, c *Controller, id string) models.FileEntry {
	t.Helper()
	e, ok := c.State().Entry(id)
	require.True(t, ok, "entry %s not found", id)
	return e
}

func TestController_SelectValidation(t *testing.T) {
	store := testutil.NewMemoryStore()
	c := NewController(newGatedUploader(), store, Options{})

	res := c.Select([]Candidate{
		stage(store, "a.pdf", "application/pdf"),
		stage(store, "b.txt", "text/plain"),
		stage(store, "c.PDF", "application/pdf; charset=binary"),
		stage(store, "d.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
	})

	assert.Len(t, res.Accepted, 2)
	assert.Len(t, res.Rejected, 2)
	assert.Equal(t, 2, res.Skipped)

	s := c.State()
	require.Len(t, s.Entries, 2)
	assert.Equal(t, "a.pdf", s.Entries[0].Name)
	assert.Equal(t, models.FileStatusPending, s.Entries[0].Status)
	assert.Equal(t, "Skipped 2 non-PDF files.", s.Notice)

	// A clean selection replaces the notice.
	c.Select([]Candidate{stage(store, "e.pdf", "application/pdf")})
	assert.Empty(t, c.State().Notice)
	assert.Len(t, c.State().Entries, 3)
}

func TestController_UploadScenario(t *testing.T) {
	store := testutil.NewMemoryStore()
	up := newGatedUploader()
	c := NewController(up, store, Options{})

	res := c.Select([]Candidate{stage(store, "a.pdf", "application/pdf"), stage(store, "b.txt", "text/plain")})
	for _, r := range res.Rejected {
		require.NoError(t, store.Delete(r.Ref))
	}
	s := c.State()
	require.Len(t, s.Entries, 1)
	assert.Equal(t, "Skipped 1 non-PDF files.", s.Notice)
	id := s.Entries[0].ID

	batch, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusUploading, statusOf(t, c, id).Status)
	assert.Equal(t, NoticeUploading, c.State().Notice)

	call := up.next(t)
	assert.Equal(t, []string{"a.pdf"}, call.names)
	assert.Equal(t, []string{"%PDF-a.pdf"}, call.bodies)
	call.reply <- reply{results: []ragclient.FileResult{{Filename: "a.pdf", ChunksCount: 5}}}

	out := waitBatch(t, batch)
	assert.NoError(t, out.Err)

	e := statusOf(t, c, id)
	assert.Equal(t, models.FileStatusSuccess, e.Status)
	assert.Equal(t, "Processed 5 chunks", e.Message)
	assert.Equal(t, NoticeProcessed, c.State().Notice)
	assert.Equal(t, 0, c.State().InFlight)
	assert.Equal(t, 0, store.Len(), "staged bytes are released after resolution")
}

func TestController_SubmitWithoutPending(t *testing.T) {
	up := newGatedUploader()
	c := NewController(up, testutil.NewMemoryStore(), Options{})

	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNoPendingItems)
	assert.Equal(t, int32(0), up.count.Load())
}

func TestController_RemoveWhileUploading(t *testing.T) {
	store := testutil.NewMemoryStore()
	up := newGatedUploader()
	c := NewController(up, store, Options{})

	c.Select([]Candidate{stage(store, "a.pdf", "application/pdf")})
	id := c.State().Entries[0].ID

	batch, err := c.Submit(context.Background())
	require.NoError(t, err)
	call := up.next(t)

	err = c.Remove(id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, c.State().Entries, 1)

	call.reply <- reply{results: []ragclient.FileResult{{Filename: "a.pdf", ChunksCount: 1}}}
	waitBatch(t, batch)

	require.NoError(t, c.Remove(id))
	assert.Empty(t, c.State().Entries)
	assert.ErrorIs(t, c.Remove(id), ErrEntryNotFound)
}

func TestController_RemovePendingReleasesBytes(t *testing.T) {
	store := testutil.NewMemoryStore()
	c := NewController(newGatedUploader(), store, Options{})

	c.Select([]Candidate{stage(store, "a.pdf", "application/pdf")})
	require.Equal(t, 1, store.Len())

	require.NoError(t, c.Remove(c.State().Entries[0].ID))
	assert.Equal(t, 0, store.Len())
}

func TestController_SnapshotIsolation(t *testing.T) {
	store := testutil.NewMemoryStore()
	up := newGatedUploader()
	c := NewController(up, store, Options{})

	c.Select([]Candidate{stage(store, "a.pdf", "application/pdf")})
	idA := c.State().Entries[0].ID

	batch1, err := c.Submit(context.Background())
	require.NoError(t, err)
	call1 := up.next(t)

	// Selected after the first submission: not part of batch1.
	c.Select([]Candidate{stage(store, "b.pdf", "application/pdf")})
	idB := c.State().Entries[1].ID
	assert.Equal(t, models.FileStatusPending, statusOf(t, c, idB).Status)

	batch2, err := c.Submit(context.Background())
	require.NoError(t, err)
	call2 := up.next(t)
	assert.Equal(t, []string{"b.pdf"}, call2.names)
	assert.Equal(t, 2, c.State().InFlight)

	// The later batch resolves first.
	call2.reply <- reply{results: []ragclient.FileResult{{Filename: "b.pdf", ChunksCount: 2}}}
	waitBatch(t, batch2)
	assert.Equal(t, models.FileStatusUploading, statusOf(t, c, idA).Status)
	assert.Equal(t, models.FileStatusSuccess, statusOf(t, c, idB).Status)

	// The earlier batch reports a stray failure for b.pdf; b.pdf is not its entry.
	call1.reply <- reply{results: []ragclient.FileResult{
		{Filename: "a.pdf", Status: "failed", Error: "encrypted"},
		{Filename: "b.pdf", Status: "failed", Error: "stray"},
	}}
	waitBatch(t, batch1)

	a := statusOf(t, c, idA)
	b := statusOf(t, c, idB)
	assert.Equal(t, models.FileStatusFailed, a.Status)
	assert.Equal(t, "Error: encrypted", a.Message)
	assert.Equal(t, models.FileStatusSuccess, b.Status)
	assert.Equal(t, "Processed 2 chunks", b.Message)
}

func TestController_RemoveDuringFlightDoesNotLeak(t *testing.T) {
	store := testutil.NewMemoryStore()
	up := newGatedUploader()
	c := NewController(up, store, Options{})

	c.Select([]Candidate{stage(store, "a.pdf", "application/pdf")})
	batch, err := c.Submit(context.Background())
	require.NoError(t, err)
	call := up.next(t)

	c.Select([]Candidate{stage(store, "b.pdf", "application/pdf")})
	idB := c.State().Entries[1].ID
	require.NoError(t, c.Remove(idB))

	call.reply <- reply{results: []ragclient.FileResult{{Filename: "a.pdf", ChunksCount: 1}, {Filename: "b.pdf", ChunksCount: 1}}}
	out := waitBatch(t, batch)

	require.Len(t, out.Patches, 1)
	require.Len(t, c.State().Entries, 1)
	assert.Equal(t, "a.pdf", c.State().Entries[0].Name)
}

func TestController_BatchFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantMsg    string
		wantNotice string
	}{
		{
			name:       "service error",
			err:        &ragclient.ServiceError{StatusCode: 400, Detail: "No files were processed."},
			wantMsg:    "No files were processed.",
			wantNotice: "Error: No files were processed.",
		},
		{
			name:       "transport error",
			err:        &ragclient.TransportError{Op: "upload", Err: errors.New("connection refused")},
			wantMsg:    MsgNetworkError,
			wantNotice: NoticeNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMemoryStore()
			up := newGatedUploader()
			c := NewController(up, store, Options{})

			c.Select([]Candidate{stage(store, "a.pdf", "application/pdf"), stage(store, "b.pdf", "application/pdf")})
			batch, err := c.Submit(context.Background())
			require.NoError(t, err)
			up.next(t).reply <- reply{err: tt.err}

			out := waitBatch(t, batch)
			assert.Equal(t, tt.err, out.Err)
			for _, e := range c.State().Entries {
				assert.Equal(t, models.FileStatusFailed, e.Status)
				assert.Equal(t, tt.wantMsg, e.Message)
			}
			assert.Equal(t, tt.wantNotice, c.State().Notice)
		})
	}
}

func TestController_UnreadableStagedFile(t *testing.T) {
	store := testutil.NewMemoryStore()
	up := newGatedUploader()
	c := NewController(up, store, Options{})

	bad := stage(store, "bad.pdf", "application/pdf")
	store.FailOpen(bad.Ref, errors.New("disk error"))
	c.Select([]Candidate{bad, stage(store, "good.pdf", "application/pdf")})

	batch, err := c.Submit(context.Background())
	require.NoError(t, err)
	call := up.next(t)
	assert.Equal(t, []string{"good.pdf"}, call.names)
	call.reply <- reply{results: []ragclient.FileResult{{Filename: "good.pdf", ChunksCount: 2}}}
	waitBatch(t, batch)

	s := c.State()
	assert.Equal(t, models.FileStatusFailed, s.Entries[0].Status)
	assert.Equal(t, "Error: disk error", s.Entries[0].Message)
	assert.Equal(t, models.FileStatusSuccess, s.Entries[1].Status)
}

func TestController_SubmitIgnoresCallerCancellation(t *testing.T) {
	store := testutil.NewMemoryStore()
	up := newGatedUploader()
	c := NewController(up, store, Options{})
	c.Select([]Candidate{stage(store, "a.pdf", "application/pdf")})

	ctx, cancel := context.WithCancel(context.Background())
	batch, err := c.Submit(ctx)
	require.NoError(t, err)
	cancel()

	up.next(t).reply <- reply{results: []ragclient.FileResult{{Filename: "a.pdf", ChunksCount: 1}}}
	waitBatch(t, batch)
	assert.Equal(t, models.FileStatusSuccess, c.State().Entries[0].Status)
}

func TestController_Subscribe(t *testing.T) {
	store := testutil.NewMemoryStore()
	up := newGatedUploader()
	c := NewController(up, store, Options{})

	initial, updates, cancel := c.Subscribe()
	defer cancel()
	assert.Empty(t, initial.Entries)

	c.Select([]Candidate{stage(store, "a.pdf", "application/pdf")})
	select {
	case s := <-updates:
		require.Len(t, s.Entries, 1)
		assert.Greater(t, s.Version, initial.Version)
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}
}

func TestController_Close(t *testing.T) {
	store := testutil.NewMemoryStore()
	up := newGatedUploader()
	c := NewController(up, store, Options{})

	c.Select([]Candidate{stage(store, "a.pdf", "application/pdf")})
	_, err := c.Submit(context.Background())
	require.NoError(t, err)
	c.Select([]Candidate{stage(store, "b.pdf", "application/pdf")})

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()

	up.next(t).reply <- reply{results: []ragclient.FileResult{{Filename: "a.pdf", ChunksCount: 1}}}
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after in-flight batch resolved")
	}
	assert.Empty(t, c.State().Entries)
	assert.Equal(t, 0, store.Len())
}
