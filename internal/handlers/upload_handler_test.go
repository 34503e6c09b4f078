package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/services/ingest"
	"github.com/kstocklab/finsight/internal/services/state"
)

type fixedRenderer struct{ pages int }

func (r *fixedRenderer) RenderPage(string, int, int) (image.Image, error) {
	return nil, fmt.Errorf("not rendered")
}

func (r *fixedRenderer) PageSize(_ string, _ int, dpi int) (float64, float64, error) {
	scale := float64(dpi) / 150.0
	return ingest.FallbackPageWidth150 * scale, ingest.FallbackPageHeight150 * scale, nil
}

func (r *fixedRenderer) PageCount(string) (int, error) { return r.pages, nil }

func newUploadHandler(t *testing.T) *UploadHandler {
	t.Helper()
	dir := t.TempDir()
	store := state.NewStore(filepath.Join(dir, "states.json"), arbor.NewLogger())
	svc := ingest.NewService(ingest.ServiceOptions{
		Store:       store,
		Renderer:    &fixedRenderer{pages: 5},
		UploadDir:   filepath.Join(dir, "uploads"),
		AnalyzerDPI: 150,
		RenderDPI:   300,
		Logger:      arbor.NewLogger(),
	})
	return NewUploadHandler(svc, arbor.NewLogger())
}

func multipartPDF(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func TestUploadThenStatus(t *testing.T) {
	h := newUploadHandler(t)

	body, contentType := multipartPDF(t, "report.pdf")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.UploadFileHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var uploaded struct {
		FileID           string `json:"fileId"`
		Pages            int    `json:"pages"`
		Filename         string `json:"filename"`
		ProcessingStatus string `json:"processingStatus"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	assert.NotEmpty(t, uploaded.FileID)
	assert.Equal(t, 5, uploaded.Pages)
	assert.Equal(t, "report.pdf", uploaded.Filename)
	assert.Equal(t, "queued", uploaded.ProcessingStatus)

	statusReq := httptest.NewRequest(http.MethodGet, "/status/"+uploaded.FileID, nil)
	statusRec := httptest.NewRecorder()
	h.StatusHandler(statusRec, statusReq)

	require.Equal(t, http.StatusOK, statusRec.Code)
	var status struct {
		FileID              string `json:"fileId"`
		RagProcessingStatus string `json:"ragProcessingStatus"`
	}
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
	assert.Equal(t, uploaded.FileID, status.FileID)
	assert.Equal(t, "pending", status.RagProcessingStatus)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	h := newUploadHandler(t)

	body, contentType := multipartPDF(t, "notes.txt")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.UploadFileHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusUnknownFileIs404(t *testing.T) {
	h := newUploadHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/status/file_unknown", nil)
	rec := httptest.NewRecorder()
	h.StatusHandler(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var status struct {
		RagProcessingStatus string `json:"ragProcessingStatus"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "not_found", status.RagProcessingStatus)
}

func TestChunksBeforeProcessingIs404(t *testing.T) {
	h := newUploadHandler(t)

	body, contentType := multipartPDF(t, "report.pdf")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.UploadFileHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var uploaded struct {
		FileID string `json:"fileId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))

	chunksReq := httptest.NewRequest(http.MethodGet, "/chunks/"+uploaded.FileID, nil)
	chunksRec := httptest.NewRecorder()
	h.ChunksHandler(chunksRec, chunksReq)
	assert.Equal(t, http.StatusNotFound, chunksRec.Code)
}

func TestListFiles(t *testing.T) {
	h := newUploadHandler(t)

	body, contentType := multipartPDF(t, "report.pdf")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.UploadFileHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/files", nil)
	listRec := httptest.NewRecorder()
	h.ListFilesHandler(listRec, listReq)

	require.Equal(t, http.StatusOK, listRec.Code)
	var entries []struct {
		Filename string `json:"filename"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "report.pdf", entries[0].Filename)
}
