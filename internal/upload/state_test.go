package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finqa/workbench/internal/models"
)

func pending(id, name string) models.FileEntry {
	return models.NewFileEntry(id, name, "application/pdf", "ref-"+id, 1)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s0 := Reduce(State{}, Selected{Entries: []models.FileEntry{pending("1", "a.pdf")}})
	s1 := Reduce(s0, BatchStarted{BatchID: "b1", EntryIDs: []string{"1"}})

	assert.Equal(t, models.FileStatusPending, s0.Entries[0].Status)
	assert.Equal(t, models.FileStatusUploading, s1.Entries[0].Status)
	assert.Equal(t, "b1", s1.Entries[0].BatchID)
	assert.Equal(t, 1, s1.InFlight)
	assert.Greater(t, s1.Version, s0.Version)
}

func TestReduce_RemoveUploadingIsNoop(t *testing.T) {
	s := Reduce(State{}, Selected{Entries: []models.FileEntry{pending("1", "a.pdf"), pending("2", "b.pdf")}})
	s = Reduce(s, BatchStarted{BatchID: "b1", EntryIDs: []string{"1"}})

	s = Reduce(s, Removed{ID: "1"})
	require.Len(t, s.Entries, 2)

	s = Reduce(s, Removed{ID: "2"})
	require.Len(t, s.Entries, 1)
	assert.Equal(t, "1", s.Entries[0].ID)
}

func TestReduce_ResolvedOnlyTouchesOwnBatch(t *testing.T) {
	s := Reduce(State{}, Selected{Entries: []models.FileEntry{pending("1", "a.pdf"), pending("2", "b.pdf")}})
	s = Reduce(s, BatchStarted{BatchID: "b1", EntryIDs: []string{"1"}})
	s = Reduce(s, BatchStarted{BatchID: "b2", EntryIDs: []string{"2"}})

	// A patch naming an entry from another batch is ignored.
	s = Reduce(s, BatchResolved{BatchID: "b1", Patches: []Patch{
		{EntryID: "1", Status: models.FileStatusSuccess, Message: "Processed 1 chunks"},
		{EntryID: "2", Status: models.FileStatusFailed, Message: "stray"},
	}})

	e1, _ := s.Entry("1")
	e2, _ := s.Entry("2")
	assert.Equal(t, models.FileStatusSuccess, e1.Status)
	assert.Empty(t, e1.BatchID)
	assert.Equal(t, models.FileStatusUploading, e2.Status)
	assert.Equal(t, 1, s.InFlight)

	// Terminal entries never move again.
	s = Reduce(s, BatchResolved{BatchID: "b1", Patches: []Patch{{EntryID: "1", Status: models.FileStatusFailed}}})
	e1, _ = s.Entry("1")
	assert.Equal(t, models.FileStatusSuccess, e1.Status)
}

func TestReduce_ClearedKeepsUploading(t *testing.T) {
	s := Reduce(State{}, Selected{Entries: []models.FileEntry{pending("1", "a.pdf"), pending("2", "b.pdf")}, Notice: "Skipped 1 non-PDF files."})
	s = Reduce(s, BatchStarted{BatchID: "b1", EntryIDs: []string{"2"}})
	s = Reduce(s, Cleared{})

	require.Len(t, s.Entries, 1)
	assert.Equal(t, "2", s.Entries[0].ID)
	assert.Empty(t, s.Notice)
}
