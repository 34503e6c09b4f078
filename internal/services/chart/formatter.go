package chart

import (
	"strconv"
	"strings"

	"github.com/kstocklab/finsight/internal/kiwoom"
	"github.com/kstocklab/finsight/internal/models"
)

// parsenum coerces a broker numeric string to a float. Sign prefixes and
// comma grouping are tolerated; an unparseable value yields nil, never a
// dropped row.
func parseNum(s string) *float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if v < 0 {
		v = -v
	}
	return &v
}

// FormatRecords renames broker-native fields into the canonical column
// shape. Date keys are carried through untouched; CanonicalizeDates applies
// the per-resolution scheme separately.
func FormatRecords(native []kiwoom.NativeRecord) []models.ChartRecord {
	rows := make([]models.ChartRecord, 0, len(native))
	for _, rec := range native {
		rows = append(rows, models.ChartRecord{
			Date:   rec.DateKey(),
			Open:   parseNum(rec.OpenPric),
			High:   parseNum(rec.HighPric),
			Low:    parseNum(rec.LowPric),
			Close:  parseNum(rec.CurPrc),
			Volume: parseNum(rec.TrdeQty),
			Amount: parseNum(rec.TrdePrica),
		})
	}
	return rows
}

// MarkdownTable renders chart rows as a markdown table for answer text.
func MarkdownTable(rows []models.ChartRecord) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(models.ChartColumns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(models.ChartColumns)) + "\n")
	for _, row := range rows {
		b.WriteString("| " + row.Date)
		for _, v := range []*float64{row.Open, row.High, row.Low, row.Close, row.Volume, row.Amount} {
			b.WriteString(" | ")
			if v == nil {
				b.WriteString("-")
			} else {
				b.WriteString(strconv.FormatFloat(*v, 'f', -1, 64))
			}
		}
		b.WriteString(" |\n")
	}
	return b.String()
}
