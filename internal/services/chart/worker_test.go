package chart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/kiwoom"
	"github.com/kstocklab/finsight/internal/models"
)

// stubFetcher serves canned responses per resolution and counts calls.
type stubFetcher struct {
	responses map[models.Resolution]*kiwoom.ChartResponse
	errs      map[models.Resolution]error
	calls     []models.Resolution
}

func (s *stubFetcher) serve(res models.Resolution) (*kiwoom.ChartResponse, error) {
	s.calls = append(s.calls, res)
	if err := s.errs[res]; err != nil {
		return nil, err
	}
	if resp, ok := s.responses[res]; ok {
		return resp, nil
	}
	return &kiwoom.ChartResponse{}, nil
}

func (s *stubFetcher) MinuteChart(ctx context.Context, ticker string, scope int) (*kiwoom.ChartResponse, error) {
	return s.serve(models.ResolutionMinute)
}
func (s *stubFetcher) DailyChart(ctx context.Context, ticker, baseDate string) (*kiwoom.ChartResponse, error) {
	return s.serve(models.ResolutionDay)
}
func (s *stubFetcher) WeeklyChart(ctx context.Context, ticker, baseDate string) (*kiwoom.ChartResponse, error) {
	return s.serve(models.ResolutionWeek)
}
func (s *stubFetcher) MonthlyChart(ctx context.Context, ticker, baseDate string) (*kiwoom.ChartResponse, error) {
	return s.serve(models.ResolutionMonth)
}
func (s *stubFetcher) YearlyChart(ctx context.Context, ticker, baseDate string) (*kiwoom.ChartResponse, error) {
	return s.serve(models.ResolutionYear)
}

func weeklyRows(dates ...string) []kiwoom.NativeRecord {
	rows := make([]kiwoom.NativeRecord, 0, len(dates))
	for _, d := range dates {
		rows = append(rows, dailyRecord(d))
	}
	return rows
}

func TestWorkerFollowsUpgradeDirective(t *testing.T) {
	// Day history starts too late; week history covers the window.
	fetcher := &stubFetcher{
		responses: map[models.Resolution]*kiwoom.ChartResponse{
			models.ResolutionDay: {
				DayRows: weeklyRows("20230601", "20230602"),
			},
			models.ResolutionWeek: {
				WeekRows: weeklyRows("20221230", "20230106", "20230113", "20230120"),
			},
		},
	}
	worker := NewWorker(fetcher, testEngine(t), arbor.NewLogger())

	result, finalRes, err := worker.Run(context.Background(), models.ChartRequest{
		Ticker:        "005930",
		Resolution:    models.ResolutionDay,
		ExpectedStart: "20230101",
		ExpectedEnd:   "20230131",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ChartSuccess, result.Tag)
	assert.Equal(t, models.ResolutionWeek, finalRes)
	assert.Equal(t, []models.Resolution{models.ResolutionDay, models.ResolutionWeek}, fetcher.calls)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, "202301Week1", result.Rows[0].Date)
}

func TestWorkerStopsAtTerminal(t *testing.T) {
	fetcher := &stubFetcher{
		responses: map[models.Resolution]*kiwoom.ChartResponse{
			models.ResolutionYear: {
				YearRows: weeklyRows("20000103"),
			},
		},
	}
	worker := NewWorker(fetcher, testEngine(t), arbor.NewLogger())

	result, finalRes, err := worker.Run(context.Background(), models.ChartRequest{
		Ticker:        "005930",
		Resolution:    models.ResolutionYear,
		ExpectedStart: "19800101",
		ExpectedEnd:   "19851231",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ChartUpgradeRequired, result.Tag)
	assert.Nil(t, result.Next)
	assert.Equal(t, models.ResolutionYear, finalRes)
}

func TestWorkerRetriesBrokerErrors(t *testing.T) {
	fetcher := &stubFetcher{
		errs: map[models.Resolution]error{
			models.ResolutionDay: &kiwoom.APIError{StatusCode: 500, Message: "upstream down"},
		},
	}
	worker := NewWorker(fetcher, testEngine(t), arbor.NewLogger())

	start := time.Now()
	result, _, err := worker.Run(context.Background(), models.ChartRequest{
		Ticker:        "005930",
		Resolution:    models.ResolutionDay,
		ExpectedStart: "20240101",
		ExpectedEnd:   "20240131",
	})

	require.Error(t, err)
	assert.Equal(t, models.ChartError, result.Tag)
	assert.Len(t, fetcher.calls, maxFetchAttempts)
	assert.GreaterOrEqual(t, time.Since(start), backoffBase) // backoff between attempts
}

func TestWorkerGetChartSelectsResolution(t *testing.T) {
	fetcher := &stubFetcher{
		responses: map[models.Resolution]*kiwoom.ChartResponse{
			models.ResolutionDay: {
				DayRows: weeklyRows(januaryTradingDays2024()...),
			},
		},
	}
	worker := NewWorker(fetcher, testEngine(t), arbor.NewLogger())

	start, _ := time.Parse("20060102", "20240102")
	end, _ := time.Parse("20060102", "20240131")
	result, finalRes, err := worker.GetChart(context.Background(), "005930.KS", start, end)
	require.NoError(t, err)

	assert.Equal(t, models.ChartSuccess, result.Tag)
	assert.Equal(t, models.ResolutionDay, finalRes)
	assert.Len(t, result.Rows, 21)
}
