package upload

import (
	"context"

	"github.com/finqa/workbench/internal/models"
)

// Outcome is how a batch resolved. Err is the remote failure, if any; it has
// already been absorbed into the patches.
type Outcome struct {
	Patches []Patch `json:"patches"`
	Notice  string  `json:"notice,omitempty"`
	Err     error   `json:"-"`
}

// Batch is one in-flight upload request and the entries it is responsible for.
type Batch struct {
	ID      string             `json:"id"`
	Entries []models.FileEntry `json:"entries"` // Snapshot taken at submit time

	done    chan struct{}
	outcome Outcome
}

func newBatch(id string, snapshot []models.FileEntry) *Batch {
	return &Batch{
		ID:      id,
		Entries: snapshot,
		done:    make(chan struct{}),
	}
}

func (b *Batch) resolve(o Outcome) {
	b.outcome = o
	close(b.done)
}

// Done is closed once the batch has been reconciled.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the batch resolves or ctx ends.
func (b *Batch) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-b.done:
		return b.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
