package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/common"
	"github.com/kstocklab/finsight/internal/models"
	"github.com/kstocklab/finsight/internal/services/state"
)

// FileRecord pairs a file's metadata with its current processing status.
type FileRecord struct {
	Metadata models.FileMetadata
	Status   models.ProcessingStatus
}

type job struct {
	metadata models.FileMetadata
}

// Service owns the upload directory and the single background ingestion
// worker. One ingestion runs at a time; uploads queue behind it.
type Service struct {
	pipeline  *Pipeline
	store     *state.Store
	renderer  Renderer
	uploadDir string
	timeout   time.Duration
	logger    arbor.ILogger

	analyzerDPI int
	renderDPI   int

	queue chan job
	wg    sync.WaitGroup

	mu       sync.RWMutex
	statuses map[string]models.ProcessingStatus
}

// ServiceOptions carries the collaborators and tuning for the ingest service.
type ServiceOptions struct {
	Pipeline    *Pipeline
	Store       *state.Store
	Renderer    Renderer
	UploadDir   string
	Timeout     time.Duration
	AnalyzerDPI int
	RenderDPI   int
	Logger      arbor.ILogger
}

func NewService(opts ServiceOptions) *Service {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Service{
		pipeline:    opts.Pipeline,
		store:       opts.Store,
		renderer:    opts.Renderer,
		uploadDir:   opts.UploadDir,
		timeout:     timeout,
		logger:      opts.Logger,
		analyzerDPI: opts.AnalyzerDPI,
		renderDPI:   opts.RenderDPI,
		queue:       make(chan job, 64),
		statuses:    make(map[string]models.ProcessingStatus),
	}
}

// Start launches the background worker. It drains the queue until ctx is
// cancelled; in-flight ingestion still gets its own wall-clock timeout.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case j := <-s.queue:
				s.process(ctx, j)
			}
		}
	}()
}

// Wait blocks until the worker goroutine has exited.
func (s *Service) Wait() {
	s.wg.Wait()
}

// SaveUpload persists an uploaded PDF and its metadata sidecar, queues it
// for ingestion and returns the metadata. The ingestion state is keyed by
// the original filename so a re-upload merges into the same record.
func (s *Service) SaveUpload(originalFilename string, r io.Reader) (models.FileMetadata, error) {
	name := filepath.Base(originalFilename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return models.FileMetadata{}, fmt.Errorf("only PDF uploads are accepted, got %q", name)
	}
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return models.FileMetadata{}, fmt.Errorf("failed to create upload directory: %w", err)
	}

	fileID := common.NewFileID()
	pdfPath := s.pdfPath(fileID)

	dst, err := os.Create(pdfPath)
	if err != nil {
		return models.FileMetadata{}, fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		os.Remove(pdfPath)
		return models.FileMetadata{}, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(pdfPath)
		return models.FileMetadata{}, fmt.Errorf("failed to finish upload write: %w", err)
	}

	pages, err := s.renderer.PageCount(pdfPath)
	if err != nil {
		os.Remove(pdfPath)
		return models.FileMetadata{}, fmt.Errorf("uploaded file is not a readable PDF: %w", err)
	}

	meta := models.FileMetadata{
		FileID:           fileID,
		OriginalFilename: name,
		SavedFilename:    name,
		PageCount:        pages,
		UploadTimestamp:  time.Now().UTC(),
	}
	if err := s.writeMetadata(meta); err != nil {
		os.Remove(pdfPath)
		return models.FileMetadata{}, err
	}

	s.setStatus(fileID, models.StatusQueued)
	select {
	case s.queue <- job{metadata: meta}:
	default:
		s.setStatus(fileID, models.StatusFailed)
		return models.FileMetadata{}, fmt.Errorf("ingestion queue is full")
	}

	s.logger.Info().Str("file_id", fileID).Str("filename", name).Int("pages", pages).
		Msg("Upload saved and queued")
	return meta, nil
}

// Status reports the processing state for a file. Files ingested in a prior
// process lifetime are resolved from the persisted ingestion state.
func (s *Service) Status(fileID string) (models.FileMetadata, models.ProcessingStatus, error) {
	meta, err := s.readMetadata(fileID)
	if err != nil {
		return models.FileMetadata{}, models.StatusNotFound, err
	}

	s.mu.RLock()
	status, ok := s.statuses[fileID]
	s.mu.RUnlock()
	if ok {
		return meta, status, nil
	}

	fs, found, err := s.store.Get(meta.SavedFilename)
	if err != nil {
		return meta, models.StatusPending, nil
	}
	if found && fs.ParsingProcessed {
		return meta, models.StatusCompleted, nil
	}
	return meta, models.StatusPending, nil
}

// Chunks returns the served chunk list for a completed file. Returns
// found=false until ingestion has completed.
func (s *Service) Chunks(fileID string) ([]models.Chunk, bool, error) {
	meta, err := s.readMetadata(fileID)
	if err != nil {
		return nil, false, err
	}
	fs, found, err := s.store.Get(meta.SavedFilename)
	if err != nil {
		return nil, false, err
	}
	if !found || !fs.ParsingProcessed {
		return nil, false, nil
	}
	chunks, err := BuildChunks(&fs, s.pdfPath(fileID), s.renderer, s.analyzerDPI, s.renderDPI)
	if err != nil {
		return nil, true, err
	}
	return chunks, true, nil
}

// FilePath returns the on-disk path of the stored PDF for download.
func (s *Service) FilePath(fileID string) (string, models.FileMetadata, error) {
	meta, err := s.readMetadata(fileID)
	if err != nil {
		return "", models.FileMetadata{}, err
	}
	return s.pdfPath(fileID), meta, nil
}

// ListFiles enumerates every uploaded file with its processing status,
// newest upload first.
func (s *Service) ListFiles() ([]FileRecord, error) {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileRecord{}, nil
		}
		return nil, fmt.Errorf("failed to list upload directory: %w", err)
	}

	records := make([]FileRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		fileID := strings.TrimSuffix(entry.Name(), ".meta.json")
		meta, status, err := s.Status(fileID)
		if err != nil {
			continue
		}
		records = append(records, FileRecord{Metadata: meta, Status: status})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Metadata.UploadTimestamp.After(records[j].Metadata.UploadTimestamp)
	})
	return records, nil
}

func (s *Service) process(ctx context.Context, j job) {
	s.setStatus(j.metadata.FileID, models.StatusProcessing)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.pipeline.Run(runCtx, j.metadata.FileID, j.metadata.SavedFilename, s.pdfPath(j.metadata.FileID))
	if err != nil {
		s.logger.Error().Err(err).Str("file_id", j.metadata.FileID).Msg("Ingestion failed")
		s.setStatus(j.metadata.FileID, models.StatusFailed)
		return
	}
	s.setStatus(j.metadata.FileID, models.StatusCompleted)
}

func (s *Service) setStatus(fileID string, status models.ProcessingStatus) {
	s.mu.Lock()
	s.statuses[fileID] = status
	s.mu.Unlock()
}

func (s *Service) pdfPath(fileID string) string {
	return filepath.Join(s.uploadDir, fileID+".pdf")
}

func (s *Service) metaPath(fileID string) string {
	return filepath.Join(s.uploadDir, fileID+".meta.json")
}

func (s *Service) writeMetadata(meta models.FileMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode file metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.FileID), data, 0644); err != nil {
		return fmt.Errorf("failed to write file metadata: %w", err)
	}
	return nil
}

func (s *Service) readMetadata(fileID string) (models.FileMetadata, error) {
	data, err := os.ReadFile(s.metaPath(fileID))
	if err != nil {
		return models.FileMetadata{}, fmt.Errorf("unknown file %s: %w", fileID, err)
	}
	var meta models.FileMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return models.FileMetadata{}, fmt.Errorf("corrupt metadata for %s: %w", fileID, err)
	}
	return meta, nil
}
