// Package kiwoom provides a client for the Kiwoom Securities REST API.
// This package centralizes all brokerage API interactions for the
// application: OAuth token keeping and the five candle-chart endpoints.
package kiwoom

import (
	"fmt"
	"strings"
)

// TR codes for the chart endpoints.
const (
	TRMinuteChart  = "ka10080"
	TRDailyChart   = "ka10081"
	TRWeeklyChart  = "ka10082"
	TRMonthlyChart = "ka10083"
	TRYearlyChart  = "ka10094"
)

// APIError represents a non-200 response from the Kiwoom API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kiwoom API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// AuthError represents a failed token acquisition or an auth rejection.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("kiwoom auth failed: %s", e.Message)
}

// NormalizeTicker converts an external ticker to the broker's internal code.
// Exchange suffixes ".KS" and ".KQ" are stripped; ".NX" maps to the NXT
// alternative-exchange form "XXXXXX_AL".
func NormalizeTicker(ticker string) string {
	upper := strings.ToUpper(strings.TrimSpace(ticker))
	switch {
	case strings.HasSuffix(upper, ".KS"), strings.HasSuffix(upper, ".KQ"):
		return upper[:len(upper)-3]
	case strings.HasSuffix(upper, ".NX"):
		return upper[:len(upper)-3] + "_AL"
	}
	return upper
}
