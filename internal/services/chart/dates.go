package chart

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kstocklab/finsight/internal/models"
)

const dayLayout = "20060102"

// TruncateToDay reduces any date key (YYYYMMDD or YYYYMMDDHHMMSS) to its
// eight-character day form.
func TruncateToDay(dateKey string) string {
	if len(dateKey) > 8 {
		return dateKey[:8]
	}
	return dateKey
}

// ParseDay parses an eight-character YYYYMMDD key.
func ParseDay(dateKey string) (time.Time, error) {
	return time.Parse(dayLayout, TruncateToDay(dateKey))
}

// FormatDay renders t as a YYYYMMDD key.
func FormatDay(t time.Time) string {
	return t.Format(dayLayout)
}

// EncodeWeekKeys maps day keys to their YYYYMMWeekN bucket form: the month
// prefix plus the 1-based rank of that trading day among the month's
// observed trading days ascending. Output preserves input order.
func EncodeWeekKeys(dayKeys []string) []string {
	// Rank the distinct observed dates within each month.
	byMonth := make(map[string][]string)
	for _, key := range dayKeys {
		day := TruncateToDay(key)
		month := monthPrefix(day)
		byMonth[month] = append(byMonth[month], day)
	}

	rank := make(map[string]int)
	for _, days := range byMonth {
		sorted := dedupeSorted(days)
		for i, day := range sorted {
			rank[day] = i + 1
		}
	}

	out := make([]string, 0, len(dayKeys))
	for _, key := range dayKeys {
		day := TruncateToDay(key)
		out = append(out, fmt.Sprintf("%sWeek%d", monthPrefix(day), rank[day]))
	}
	return out
}

// DecodeWeekKey splits a YYYYMMWeekN key into its month prefix and rank.
func DecodeWeekKey(key string) (month string, rank int, err error) {
	idx := strings.Index(key, "Week")
	if idx != 6 {
		return "", 0, fmt.Errorf("invalid week key %q", key)
	}
	rank, err = strconv.Atoi(key[idx+4:])
	if err != nil || rank < 1 {
		return "", 0, fmt.Errorf("invalid week key rank in %q", key)
	}
	return key[:6], rank, nil
}

// CanonicalizeDates rewrites row date keys per the resolution's canonical
// scheme: minute keeps the full timestamp, day truncates to YYYYMMDD, week
// becomes YYYYMMWeekN, month YYYYMM, year YYYY.
func CanonicalizeDates(rows []models.ChartRecord, res models.Resolution) {
	switch res {
	case models.ResolutionMinute:
		// Full timestamp kept as-is.
	case models.ResolutionDay:
		for i := range rows {
			rows[i].Date = TruncateToDay(rows[i].Date)
		}
	case models.ResolutionWeek:
		keys := make([]string, len(rows))
		for i := range rows {
			keys[i] = rows[i].Date
		}
		encoded := EncodeWeekKeys(keys)
		for i := range rows {
			rows[i].Date = encoded[i]
		}
	case models.ResolutionMonth:
		for i := range rows {
			rows[i].Date = monthPrefix(rows[i].Date)
		}
	case models.ResolutionYear:
		for i := range rows {
			if len(rows[i].Date) >= 4 {
				rows[i].Date = rows[i].Date[:4]
			}
		}
	}
}

func monthPrefix(dayKey string) string {
	if len(dayKey) >= 6 {
		return dayKey[:6]
	}
	return dayKey
}

func dedupeSorted(days []string) []string {
	sort.Strings(days)
	out := days[:0]
	var prev string
	for _, d := range days {
		if d != prev {
			out = append(out, d)
			prev = d
		}
	}
	return out
}

// SelectResolution chooses the initial candle resolution for a requested
// window by its span. Callers follow engine upgrade/downgrade directives
// from there.
func SelectResolution(start, end time.Time) (models.Resolution, int) {
	span := end.Sub(start)
	switch {
	case span <= 48*time.Hour:
		return models.ResolutionMinute, 5
	case span <= 150*24*time.Hour:
		return models.ResolutionDay, 0
	case span <= 2*365*24*time.Hour:
		return models.ResolutionWeek, 0
	case span <= 6*365*24*time.Hour:
		return models.ResolutionMonth, 0
	default:
		return models.ResolutionYear, 0
	}
}
