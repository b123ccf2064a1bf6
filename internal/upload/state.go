package upload

import "github.com/finqa/workbench/internal/models"

// State is the upload list as seen by the presentation layer.
// A State is never mutated after it is published; Reduce returns a new one.
type State struct {
	Entries  []models.FileEntry `json:"entries" msgpack:"entries"`
	Notice   string             `json:"notice,omitempty" msgpack:"notice,omitempty"`
	InFlight int                `json:"inFlight" msgpack:"inFlight"` // Unresolved batches
	Version  uint64             `json:"version" msgpack:"version"`
}

// Entry returns the entry with the given ID.
func (s State) Entry(id string) (models.FileEntry, bool) {
	for _, e := range s.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return models.FileEntry{}, false
}

// Count returns how many entries have the given status.
func (s State) Count(status models.FileStatus) int {
	n := 0
	for _, e := range s.Entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

// Selected appends accepted entries and replaces the notice.
type Selected struct {
	Entries []models.FileEntry
	Notice  string
}

// Removed drops one entry unless it is uploading.
type Removed struct {
	ID string
}

// BatchStarted moves the listed pending entries to uploading under BatchID.
type BatchStarted struct {
	BatchID  string
	EntryIDs []string
	Notice   string
}

// BatchResolved applies a batch's patches to the entries it still owns.
type BatchResolved struct {
	BatchID string
	Patches []Patch
	Notice  string
}

// Cleared drops every entry that is not uploading and clears the notice.
type Cleared struct{}

func (Selected) isEvent()      {}
func (Removed) isEvent()       {}
func (BatchStarted) isEvent()  {}
func (BatchResolved) isEvent() {}
func (Cleared) isEvent()       {}

// Patch is the terminal outcome for one entry of a batch.
type Patch struct {
	EntryID string            `json:"entryId"`
	Status  models.FileStatus `json:"status"`
	Message string            `json:"message"`
}

// Reduce computes the next state. It never modifies s.
func Reduce(s State, ev Event) State {
	next := State{
		Entries:  make([]models.FileEntry, 0, len(s.Entries)),
		Notice:   s.Notice,
		InFlight: s.InFlight,
		Version:  s.Version + 1,
	}

	switch ev := ev.(type) {
	case Selected:
		next.Entries = append(next.Entries, s.Entries...)
		for _, e := range ev.Entries {
			e.Status = models.FileStatusPending
			e.BatchID = ""
			next.Entries = append(next.Entries, e)
		}
		next.Notice = ev.Notice

	case Removed:
		for _, e := range s.Entries {
			if e.ID == ev.ID && e.Status != models.FileStatusUploading {
				continue
			}
			next.Entries = append(next.Entries, e)
		}

	case BatchStarted:
		ids := make(map[string]struct{}, len(ev.EntryIDs))
		for _, id := range ev.EntryIDs {
			ids[id] = struct{}{}
		}
		for _, e := range s.Entries {
			if _, ok := ids[e.ID]; ok && e.Status == models.FileStatusPending {
				e.Status = models.FileStatusUploading
				e.Message = "Uploading..."
				e.BatchID = ev.BatchID
			}
			next.Entries = append(next.Entries, e)
		}
		next.InFlight++
		if ev.Notice != "" {
			next.Notice = ev.Notice
		}

	case BatchResolved:
		patches := make(map[string]Patch, len(ev.Patches))
		for _, p := range ev.Patches {
			patches[p.EntryID] = p
		}
		for _, e := range s.Entries {
			// Only entries still owned by this batch accept its outcome.
			if p, ok := patches[e.ID]; ok && e.Status == models.FileStatusUploading && e.BatchID == ev.BatchID {
				e.Status = p.Status
				e.Message = p.Message
				e.BatchID = ""
			}
			next.Entries = append(next.Entries, e)
		}
		if next.InFlight > 0 {
			next.InFlight--
		}
		if ev.Notice != "" {
			next.Notice = ev.Notice
		}

	case Cleared:
		for _, e := range s.Entries {
			if e.Status == models.FileStatusUploading {
				next.Entries = append(next.Entries, e)
			}
		}
		next.Notice = ""

	default:
		next.Entries = append(next.Entries, s.Entries...)
	}

	return next
}
