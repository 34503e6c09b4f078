package handlers

import (
	"net/http"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/models"
	"github.com/kstocklab/finsight/internal/services/ingest"
)

const maxUploadBytes = 200 << 20

// UploadHandler exposes the ingestion side of the HTTP surface: upload,
// status, chunk listing, download and file enumeration.
type UploadHandler struct {
	service *ingest.Service
	logger  arbor.ILogger
}

func NewUploadHandler(service *ingest.Service, logger arbor.ILogger) *UploadHandler {
	return &UploadHandler{
		service: service,
		logger:  logger,
	}
}

type uploadResponse struct {
	FileID           string `json:"fileId"`
	Pages            int    `json:"pages"`
	Filename         string `json:"filename"`
	UploadedAt       string `json:"uploadedAt"`
	ProcessingStatus string `json:"processingStatus"`
}

// UploadFileHandler handles POST /upload
func (h *UploadHandler) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing file field: "+err.Error())
		return
	}
	defer file.Close()

	meta, err := h.service.SaveUpload(header.Filename, file)
	if err != nil {
		h.logger.Warn().Err(err).Str("filename", header.Filename).Msg("Upload rejected")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, uploadResponse{
		FileID:           meta.FileID,
		Pages:            meta.PageCount,
		Filename:         meta.OriginalFilename,
		UploadedAt:       meta.UploadTimestamp.Format(time.RFC3339),
		ProcessingStatus: string(models.StatusQueued),
	})
}

type statusResponse struct {
	FileID              string `json:"fileId"`
	Pages               int    `json:"pages"`
	UploadedAt          string `json:"uploadedAt"`
	RagProcessingStatus string `json:"ragProcessingStatus"`
}

// StatusHandler handles GET /status/{file_id}
func (h *UploadHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	fileID := PathSuffix(r, "/status")
	if fileID == "" {
		WriteError(w, http.StatusBadRequest, "file id required")
		return
	}

	meta, status, err := h.service.Status(fileID)
	if err != nil {
		WriteJSON(w, http.StatusNotFound, statusResponse{
			FileID:              fileID,
			RagProcessingStatus: string(models.StatusNotFound),
		})
		return
	}

	WriteJSON(w, http.StatusOK, statusResponse{
		FileID:              meta.FileID,
		Pages:               meta.PageCount,
		UploadedAt:          meta.UploadTimestamp.Format(time.RFC3339),
		RagProcessingStatus: externalStatus(status),
	})
}

// ChunksHandler handles GET /chunks/{file_id}
func (h *UploadHandler) ChunksHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	fileID := PathSuffix(r, "/chunks")
	if fileID == "" {
		WriteError(w, http.StatusBadRequest, "file id required")
		return
	}

	chunks, ready, err := h.service.Chunks(fileID)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if !ready {
		WriteError(w, http.StatusNotFound, "file is not processed yet")
		return
	}
	WriteJSON(w, http.StatusOK, chunks)
}

// DownloadHandler handles GET /file/{file_id}/download
func (h *UploadHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	fileID := PathSuffix(r, "/file")
	if fileID == "" {
		WriteError(w, http.StatusBadRequest, "file id required")
		return
	}

	path, meta, err := h.service.FilePath(fileID)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if _, err := os.Stat(path); err != nil {
		WriteError(w, http.StatusNotFound, "stored PDF is missing")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+meta.OriginalFilename+`"`)
	http.ServeFile(w, r, path)
}

type fileListEntry struct {
	FileID           string `json:"fileId"`
	Filename         string `json:"filename"`
	Pages            int    `json:"pages"`
	UploadedAt       string `json:"uploadedAt"`
	ProcessingStatus string `json:"processingStatus"`
}

// ListFilesHandler handles GET /files
func (h *UploadHandler) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	records, err := h.service.ListFiles()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries := make([]fileListEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, fileListEntry{
			FileID:           rec.Metadata.FileID,
			Filename:         rec.Metadata.OriginalFilename,
			Pages:            rec.Metadata.PageCount,
			UploadedAt:       rec.Metadata.UploadTimestamp.Format(time.RFC3339),
			ProcessingStatus: externalStatus(rec.Status),
		})
	}
	WriteJSON(w, http.StatusOK, entries)
}

// externalStatus maps internal processing states onto the three-valued
// contract the front-end reads.
func externalStatus(status models.ProcessingStatus) string {
	switch status {
	case models.StatusCompleted:
		return string(models.StatusCompleted)
	case models.StatusNotFound:
		return string(models.StatusNotFound)
	case models.StatusFailed:
		return string(models.StatusFailed)
	default:
		return string(models.StatusPending)
	}
}
