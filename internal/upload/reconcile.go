package upload

import (
	"errors"
	"fmt"

	"github.com/finqa/workbench/internal/models"
	"github.com/finqa/workbench/internal/ragclient"
)

// Entry and batch messages shown to the user.
const (
	MsgNoResult      = "no result returned"
	MsgNetworkError  = "Network error"
	MsgUploadFailed  = "Upload failed"
	NoticeUploading  = "Uploading files..."
	NoticeProcessed  = "All selected files processed."
	NoticeNetwork    = "Network error or server unreachable."
	noticeUploadFail = "Failed to upload files."
)

// Reconcile maps a batch's outcome onto its snapshot. It reads nothing but its
// arguments, so the result depends only on what the batch sent and received.
// Exactly one patch is returned per snapshot entry, in snapshot order.
func Reconcile(snapshot []models.FileEntry, results []ragclient.FileResult, err error) []Patch {
	patches := make([]Patch, len(snapshot))

	if err != nil {
		msg := failureMessage(err)
		for i, e := range snapshot {
			patches[i] = Patch{EntryID: e.ID, Status: models.FileStatusFailed, Message: msg}
		}
		return patches
	}

	matched := Correlate(snapshot, results)
	for i, e := range snapshot {
		r := matched[i]
		switch {
		case r == nil:
			patches[i] = Patch{EntryID: e.ID, Status: models.FileStatusFailed, Message: MsgNoResult}
		case r.Failed():
			patches[i] = Patch{EntryID: e.ID, Status: models.FileStatusFailed, Message: "Error: " + r.Error}
		default:
			patches[i] = Patch{EntryID: e.ID, Status: models.FileStatusSuccess, Message: fmt.Sprintf("Processed %d chunks", r.ChunksCount)}
		}
	}
	return patches
}

// Correlate pairs every snapshot entry with at most one result.
//
// When the response is order-aligned (same length, same filename at every
// index) the request index is the key. Otherwise results are matched by
// filename, and entries sharing a filename consume that filename's results in
// request order, so duplicates resolve deterministically per entry.
func Correlate(snapshot []models.FileEntry, results []ragclient.FileResult) []*ragclient.FileResult {
	out := make([]*ragclient.FileResult, len(snapshot))

	if aligned(snapshot, results) {
		for i := range snapshot {
			out[i] = &results[i]
		}
		return out
	}

	byName := make(map[string][]int, len(results))
	for i, r := range results {
		byName[r.Filename] = append(byName[r.Filename], i)
	}
	for i, e := range snapshot {
		queue := byName[e.Name]
		if len(queue) == 0 {
			continue
		}
		out[i] = &results[queue[0]]
		byName[e.Name] = queue[1:]
	}
	return out
}

func aligned(snapshot []models.FileEntry, results []ragclient.FileResult) bool {
	if len(snapshot) != len(results) {
		return false
	}
	for i := range snapshot {
		if snapshot[i].Name != results[i].Filename {
			return false
		}
	}
	return true
}

// failureMessage is the per-entry message for a batch-level failure.
func failureMessage(err error) string {
	var svcErr *ragclient.ServiceError
	if errors.As(err, &svcErr) {
		if svcErr.Detail != "" {
			return svcErr.Detail
		}
		return MsgUploadFailed
	}
	return MsgNetworkError
}

// batchNotice is the aggregate notice once a batch resolves.
func batchNotice(err error) string {
	if err == nil {
		return NoticeProcessed
	}
	if errors.Is(err, errNothingSent) {
		return "Error: " + err.Error() + "."
	}
	var svcErr *ragclient.ServiceError
	if errors.As(err, &svcErr) {
		detail := svcErr.Detail
		if detail == "" {
			detail = noticeUploadFail
		}
		return "Error: " + detail
	}
	return NoticeNetwork
}
