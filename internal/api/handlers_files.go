// handlers_files.go - Upload list handlers
package api

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/finqa/workbench/internal/models"
	"github.com/finqa/workbench/internal/storage"
	"github.com/finqa/workbench/internal/upload"
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	sessions  WorkspaceManager
	store     StagingStore
	fieldName string
}

// NewFileHandler creates a new file handler. fieldName is the multipart field
// carrying the selected files.
func NewFileHandler(sessions WorkspaceManager, store StagingStore, fieldName string) FileHandler {
	if fieldName == "" {
		fieldName = "files"
	}
	return &FileHandlerImpl{
		sessions:  sessions,
		store:     store,
		fieldName: fieldName,
	}
}

type submitResponse struct {
	BatchID string             `json:"batchId"`
	Entries []models.FileEntry `json:"entries"`
	Notice  string             `json:"notice,omitempty"`
	State   *upload.State      `json:"state,omitempty"`
}

// HandleGetFiles returns the upload list
func (h *FileHandlerImpl) HandleGetFiles(c echo.Context) error {
	ws, err := workspaceFrom(c, h.sessions)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ws.Uploads.State())
}

// HandleGetFilesMsgpack returns the upload list in MessagePack format
func (h *FileHandlerImpl) HandleGetFilesMsgpack(c echo.Context) error {
	ws, err := workspaceFrom(c, h.sessions)
	if err != nil {
		return err
	}
	return sendMsgpack(c, http.StatusOK, ws.Uploads.State())
}

// HandleSelectFiles stages the posted files and adds the accepted ones as pending
func (h *FileHandlerImpl) HandleSelectFiles(c echo.Context) error {
	ws, err := workspaceFrom(c, h.sessions)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected multipart form", err)
	}
	headers := form.File[h.fieldName]
	if len(headers) == 0 {
		return NewValidationError(h.fieldName)
	}

	candidates := make([]upload.Candidate, 0, len(headers))
	for _, fh := range headers {
		cand, err := h.stage(fh)
		if err != nil {
			h.release(candidates)
			if errors.Is(err, storage.ErrTooLarge) {
				return NewPayloadTooLargeError("file too large", err)
			}
			return NewInternalError("failed to stage file", err)
		}
		candidates = append(candidates, cand)
	}

	res := ws.Uploads.Select(candidates)
	h.release(res.Rejected)
	log.Debugf("[Files %s] Selected %d, skipped %d", ws.ID[:8], len(res.Accepted), res.Skipped)

	return c.JSON(http.StatusCreated, res)
}

func (h *FileHandlerImpl) stage(fh *multipart.FileHeader) (upload.Candidate, error) {
	mediaType := fh.Header.Get(echo.HeaderContentType)
	if mediaType == "" || mediaType == echo.MIMEOctetStream {
		if guessed := mime.TypeByExtension(filepath.Ext(fh.Filename)); guessed != "" {
			mediaType = guessed
		}
	}

	src, err := fh.Open()
	if err != nil {
		return upload.Candidate{}, err
	}
	defer src.Close()

	info, err := h.store.Save(fh.Filename, mediaType, src)
	if err != nil {
		return upload.Candidate{}, err
	}
	return upload.Candidate{Name: info.Name, MediaType: info.MediaType, Size: info.Size, Ref: info.ID}, nil
}

func (h *FileHandlerImpl) release(candidates []upload.Candidate) {
	for _, cand := range candidates {
		if err := h.store.Delete(cand.Ref); err != nil {
			log.Debugf("[Files] Release of staged file %s: %v", cand.Ref, err)
		}
	}
}

// HandleRemoveFile drops one entry from the upload list
func (h *FileHandlerImpl) HandleRemoveFile(c echo.Context) error {
	ws, err := workspaceFrom(c, h.sessions)
	if err != nil {
		return err
	}
	fileID := c.Param("fileId")
	if fileID == "" {
		return NewValidationError("fileId")
	}

	if err := ws.Uploads.Remove(fileID); err != nil {
		switch {
		case errors.Is(err, upload.ErrEntryNotFound):
			return NewNotFoundError("file", fileID)
		case errors.Is(err, upload.ErrInvalidTransition):
			return NewConflictError("file is uploading and cannot be removed")
		}
		return NewInternalError("failed to remove file", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSubmitFiles sends every pending file as one batch. With ?wait=true the
// response is delayed until the batch has resolved.
func (h *FileHandlerImpl) HandleSubmitFiles(c echo.Context) error {
	ws, err := workspaceFrom(c, h.sessions)
	if err != nil {
		return err
	}

	batch, err := ws.Uploads.Submit(c.Request().Context())
	if err != nil {
		if errors.Is(err, upload.ErrNoPendingItems) {
			return NewConflictError("no pending files to upload")
		}
		return NewInternalError("failed to submit files", err)
	}

	if !wantsWait(c) {
		return c.JSON(http.StatusAccepted, submitResponse{
			BatchID: batch.ID,
			Entries: batch.Entries,
			Notice:  upload.NoticeUploading,
		})
	}

	out, err := batch.Wait(c.Request().Context())
	if err != nil {
		// The caller went away; the batch keeps running.
		return err
	}
	state := ws.Uploads.State()
	entries := make([]models.FileEntry, 0, len(batch.Entries))
	for _, e := range batch.Entries {
		if cur, ok := state.Entry(e.ID); ok {
			entries = append(entries, cur)
		}
	}
	return c.JSON(http.StatusOK, submitResponse{
		BatchID: batch.ID,
		Entries: entries,
		Notice:  out.Notice,
		State:   &state,
	})
}
