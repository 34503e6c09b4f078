package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Janitor prunes per-ingestion artifact directories (split batches and
// cropped images) older than the retention age. The ingestion state itself
// is never touched.
type Janitor struct {
	workDir string
	maxAge  time.Duration
	logger  arbor.ILogger
	cron    *cron.Cron
}

func NewJanitor(workDir string, maxAge time.Duration, logger arbor.ILogger) *Janitor {
	return &Janitor{
		workDir: workDir,
		maxAge:  maxAge,
		logger:  logger,
	}
}

// Start schedules the prune job. The schedule uses standard 5-field cron
// syntax.
func (j *Janitor) Start(schedule string) error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(schedule, func() {
		if err := j.Prune(); err != nil {
			j.logger.Warn().Err(err).Msg("Artifact prune failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	j.cron.Start()
	j.logger.Info().Str("schedule", schedule).Str("max_age", j.maxAge.String()).
		Msg("Artifact janitor started")
	return nil
}

// Stop halts the schedule and waits for a running prune to finish.
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Prune removes artifact directories whose modification time is older than
// the retention age.
func (j *Janitor) Prune() error {
	entries, err := os.ReadDir(j.workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read artifact directory: %w", err)
	}

	cutoff := time.Now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.workDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn().Err(err).Str("dir", entry.Name()).Msg("Failed to remove artifact directory")
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info().Int("removed", removed).Msg("Pruned old ingestion artifacts")
	}
	return nil
}
