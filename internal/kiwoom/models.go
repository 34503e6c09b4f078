package kiwoom

import "github.com/kstocklab/finsight/internal/models"

// NativeRecord is one candle row in the broker's native field naming.
// All values arrive as strings; sign prefixes ("+"/"-") are possible on
// price fields.
type NativeRecord struct {
	CurPrc    string `json:"cur_prc"`
	OpenPric  string `json:"open_pric"`
	HighPric  string `json:"high_pric"`
	LowPric   string `json:"low_pric"`
	TrdeQty   string `json:"trde_qty"`
	TrdePrica string `json:"trde_prica"`
	Dt        string `json:"dt,omitempty"`      // YYYYMMDD (day and coarser)
	CntrTm    string `json:"cntr_tm,omitempty"` // YYYYMMDDHHMMSS (minute)
}

// DateKey returns the record's date string regardless of resolution.
func (r NativeRecord) DateKey() string {
	if r.CntrTm != "" {
		return r.CntrTm
	}
	return r.Dt
}

// ChartResponse is the broker's native chart payload. Exactly one of the
// per-resolution arrays is populated depending on the TR code used.
type ChartResponse struct {
	StkCd      string         `json:"stk_cd"`
	MinuteRows []NativeRecord `json:"stk_min_pole_chart_qry,omitempty"`
	DayRows    []NativeRecord `json:"stk_dt_pole_chart_qry,omitempty"`
	WeekRows   []NativeRecord `json:"stk_stk_pole_chart_qry,omitempty"`
	MonthRows  []NativeRecord `json:"stk_mth_pole_chart_qry,omitempty"`
	YearRows   []NativeRecord `json:"stk_yr_pole_chart_qry,omitempty"`
	ReturnCode int            `json:"return_code,omitempty"`
	ReturnMsg  string         `json:"return_msg,omitempty"`
}

// RowsFor returns the data array matching the given resolution.
func (c *ChartResponse) RowsFor(res models.Resolution) []NativeRecord {
	switch res {
	case models.ResolutionMinute:
		return c.MinuteRows
	case models.ResolutionDay:
		return c.DayRows
	case models.ResolutionWeek:
		return c.WeekRows
	case models.ResolutionMonth:
		return c.MonthRows
	case models.ResolutionYear:
		return c.YearRows
	}
	return nil
}

// chartRequestBody is the POST body for the chart endpoint.
type chartRequestBody struct {
	StkCd    string `json:"stk_cd"`
	BaseDt   string `json:"base_dt,omitempty"`
	TicScope string `json:"tic_scope,omitempty"`
	UpdStkpc string `json:"upd_stkpc_tp,omitempty"` // adjusted price flag
}

// tokenResponse is the OAuth token endpoint payload.
type tokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresDt string `json:"expires_dt"` // YYYYMMDDHHMMSS, KST
}
