package models

import (
	"fmt"
	"regexp"
)

// Resolution is a candle time aggregation level.
type Resolution string

const (
	ResolutionMinute Resolution = "minute"
	ResolutionDay    Resolution = "day"
	ResolutionWeek   Resolution = "week"
	ResolutionMonth  Resolution = "month"
	ResolutionYear   Resolution = "year"
)

// MinuteScopes are the supported minute-candle tick scopes.
var MinuteScopes = []int{1, 3, 5, 10, 15, 30, 45, 60}

// Valid reports whether r is a known resolution.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionMinute, ResolutionDay, ResolutionWeek, ResolutionMonth, ResolutionYear:
		return true
	}
	return false
}

// Upgrade returns the next coarser resolution on the lattice.
// Returns false at the terminal (year).
func (r Resolution) Upgrade() (Resolution, bool) {
	switch r {
	case ResolutionMinute:
		return ResolutionDay, true
	case ResolutionDay:
		return ResolutionWeek, true
	case ResolutionWeek:
		return ResolutionMonth, true
	case ResolutionMonth:
		return ResolutionYear, true
	}
	return "", false
}

// Downgrade returns the next finer resolution on the lattice.
// Returns false at the floor (minute).
func (r Resolution) Downgrade() (Resolution, bool) {
	switch r {
	case ResolutionDay:
		return ResolutionMinute, true
	case ResolutionWeek:
		return ResolutionDay, true
	case ResolutionMonth:
		return ResolutionWeek, true
	case ResolutionYear:
		return ResolutionMonth, true
	}
	return "", false
}

// ValidMinuteScope reports whether s is a supported minute tick scope.
func ValidMinuteScope(s int) bool {
	for _, scope := range MinuteScopes {
		if scope == s {
			return true
		}
	}
	return false
}

// ChartColumns is the canonical column order of a chart result row.
var ChartColumns = []string{"date", "open", "high", "low", "close", "volume", "amount"}

// ChartRecord is one canonical candle row. Numeric fields are nil when the
// broker supplied an unparseable value.
type ChartRecord struct {
	Date   string   `json:"date"`
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume *float64 `json:"volume"`
	Amount *float64 `json:"amount"`
}

var tickerPattern = regexp.MustCompile(`^\d{6}$`)

// ChartRequest describes one chart fetch.
// ExpectedStart/ExpectedEnd/BaseDate are YYYYMMDD strings; the expected
// range is optional, and BaseDate defaults to ExpectedEnd.
type ChartRequest struct {
	Ticker        string     `json:"ticker"`
	Resolution    Resolution `json:"resolution"`
	ExpectedStart string     `json:"expected_start,omitempty"`
	ExpectedEnd   string     `json:"expected_end,omitempty"`
	BaseDate      string     `json:"base_date,omitempty"`
	MinuteScope   int        `json:"minute_scope,omitempty"`
}

// Validate checks the request invariants. Ticker must already be in broker
// form (six digits, optionally with an exchange mapping suffix).
func (r *ChartRequest) Validate() error {
	if !tickerPattern.MatchString(baseTicker(r.Ticker)) {
		return fmt.Errorf("invalid ticker %q: expected six decimal digits", r.Ticker)
	}
	if !r.Resolution.Valid() {
		return fmt.Errorf("invalid resolution %q", r.Resolution)
	}
	if r.Resolution == ResolutionMinute && r.MinuteScope != 0 && !ValidMinuteScope(r.MinuteScope) {
		return fmt.Errorf("invalid minute scope %d", r.MinuteScope)
	}
	if r.ExpectedStart != "" && r.ExpectedEnd != "" && r.ExpectedStart > r.ExpectedEnd {
		return fmt.Errorf("expected_start %s is after expected_end %s", r.ExpectedStart, r.ExpectedEnd)
	}
	return nil
}

// EffectiveBaseDate returns BaseDate, defaulting to ExpectedEnd.
func (r *ChartRequest) EffectiveBaseDate() string {
	if r.BaseDate != "" {
		return r.BaseDate
	}
	return r.ExpectedEnd
}

// baseTicker strips a broker mapping suffix such as "_AL".
func baseTicker(t string) string {
	for i := 0; i < len(t); i++ {
		if t[i] == '_' {
			return t[:i]
		}
	}
	return t
}

// ChartResultTag discriminates the ChartResult variants.
type ChartResultTag string

const (
	ChartSuccess           ChartResultTag = "success"
	ChartNoData            ChartResultTag = "no_data"
	ChartUpgradeRequired   ChartResultTag = "upgrade_required"
	ChartDowngradeRequired ChartResultTag = "downgrade_required"
	ChartError             ChartResultTag = "error"
)

// ChartResult is the tagged outcome of one engine pass.
//
// success carries Rows; upgrade_required/downgrade_required carry Next
// (nil Next on upgrade_required means the lattice terminal was reached)
// and optionally partial Rows.
type ChartResult struct {
	Tag     ChartResultTag `json:"tag"`
	Rows    []ChartRecord  `json:"rows,omitempty"`
	Columns []string       `json:"columns,omitempty"`
	Next    *Resolution    `json:"next,omitempty"`
	Message string         `json:"message,omitempty"`
}

// SuccessResult builds a success variant.
func SuccessResult(rows []ChartRecord) ChartResult {
	return ChartResult{Tag: ChartSuccess, Rows: rows, Columns: ChartColumns}
}

// NoDataResult builds a no_data variant.
func NoDataResult(message string) ChartResult {
	return ChartResult{Tag: ChartNoData, Message: message}
}

// UpgradeRequiredResult builds an upgrade_required variant. next may be nil
// at the lattice terminal; partial rows are optional.
func UpgradeRequiredResult(next *Resolution, partial []ChartRecord, message string) ChartResult {
	res := ChartResult{Tag: ChartUpgradeRequired, Next: next, Message: message}
	if len(partial) > 0 {
		res.Rows = partial
		res.Columns = ChartColumns
	}
	return res
}

// DowngradeRequiredResult builds a downgrade_required variant.
func DowngradeRequiredResult(next Resolution, message string) ChartResult {
	return ChartResult{Tag: ChartDowngradeRequired, Next: &next, Message: message}
}

// ErrorResult builds an error variant.
func ErrorResult(message string) ChartResult {
	return ChartResult{Tag: ChartError, Message: message}
}
