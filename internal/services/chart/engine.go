package chart

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/kiwoom"
	"github.com/kstocklab/finsight/internal/models"
)

// DefaultMaxRows is the oversized-window threshold: a filtered result
// larger than this steers the caller to a coarser resolution.
const DefaultMaxRows = 100

// Engine turns a broker chart response into a ChartResult: either a
// complete, canonically shaped row set inside the requested window, or a
// precise directive to retry at a different resolution. Stateless between
// calls apart from the write-only audit directory.
type Engine struct {
	logger   arbor.ILogger
	maxRows  int
	auditDir string
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithMaxRows overrides the oversized-window threshold.
func WithMaxRows(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxRows = n
		}
	}
}

// WithAuditDir enables raw/filtered audit writes into dir.
func WithAuditDir(dir string) EngineOption {
	return func(e *Engine) {
		e.auditDir = dir
	}
}

// NewEngine creates a resolution engine.
func NewEngine(logger arbor.ILogger, opts ...EngineOption) *Engine {
	e := &Engine{
		logger:  logger,
		maxRows: DefaultMaxRows,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process applies the completeness and sizing gates to raw broker output.
//
// With no expected range the broker rows are returned renamed but
// unfiltered. Otherwise: history-short gate (oldest broker row newer than
// expected_start), window filter + canonical dates, oversized-window gate
// (> maxRows), empty-window no_data, else success with ascending rows.
func (e *Engine) Process(raw *kiwoom.ChartResponse, req models.ChartRequest) models.ChartResult {
	if raw == nil {
		return models.ErrorResult("empty broker response")
	}
	native := raw.RowsFor(req.Resolution)
	e.writeAudit(req, "raw", raw)

	if req.ExpectedStart == "" || req.ExpectedEnd == "" {
		return models.SuccessResult(FormatRecords(native))
	}

	if len(native) == 0 {
		return models.NoDataResult(fmt.Sprintf("broker returned no %s rows for %s", req.Resolution, req.Ticker))
	}

	oldest := oldestDay(native)
	if oldest > req.ExpectedStart {
		return e.upgradeFor(req, nil, fmt.Sprintf(
			"history at %s resolution begins %s, after the requested start %s",
			req.Resolution, oldest, req.ExpectedStart))
	}

	filtered := filterWindow(native, req.ExpectedStart, req.ExpectedEnd)
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].DateKey() < filtered[j].DateKey()
	})

	rows := FormatRecords(filtered)
	CanonicalizeDates(rows, req.Resolution)

	if len(rows) > e.maxRows {
		partial := rows[:e.maxRows]
		return e.upgradeFor(req, partial, fmt.Sprintf(
			"window holds %d %s rows, over the %d-row limit", len(rows), req.Resolution, e.maxRows))
	}

	if len(rows) == 0 {
		return models.NoDataResult(fmt.Sprintf(
			"no %s rows between %s and %s", req.Resolution, req.ExpectedStart, req.ExpectedEnd))
	}

	e.writeAudit(req, "filtered", rows)
	return models.SuccessResult(rows)
}

// upgradeFor emits the upgrade directive, or the terminal explanation when
// the lattice has no coarser resolution left.
func (e *Engine) upgradeFor(req models.ChartRequest, partial []models.ChartRecord, reason string) models.ChartResult {
	next, ok := req.Resolution.Upgrade()
	if !ok {
		return models.UpgradeRequiredResult(nil, partial, reason+
			"; no coarser resolution exists, narrow the requested window")
	}
	return models.UpgradeRequiredResult(&next, partial, reason)
}

func oldestDay(native []kiwoom.NativeRecord) string {
	oldest := ""
	for _, rec := range native {
		day := TruncateToDay(rec.DateKey())
		if day == "" {
			continue
		}
		if oldest == "" || day < oldest {
			oldest = day
		}
	}
	return oldest
}

func filterWindow(native []kiwoom.NativeRecord, start, end string) []kiwoom.NativeRecord {
	out := make([]kiwoom.NativeRecord, 0, len(native))
	for _, rec := range native {
		day := TruncateToDay(rec.DateKey())
		if day >= start && day <= end {
			out = append(out, rec)
		}
	}
	return out
}

// writeAudit persists a snapshot to the audit directory. Best-effort: audit
// failures never affect the result.
func (e *Engine) writeAudit(req models.ChartRequest, kind string, payload interface{}) {
	if e.auditDir == "" {
		return
	}
	if err := os.MkdirAll(e.auditDir, 0755); err != nil {
		return
	}
	name := fmt.Sprintf("%s_%s_%s_%s.json",
		req.Ticker, req.Resolution, time.Now().Format("20060102T150405.000"), kind)
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(e.auditDir, name), data, 0644); err != nil && e.logger != nil {
		e.logger.Warn().Err(err).Str("kind", kind).Msg("Chart audit write failed")
	}
}
