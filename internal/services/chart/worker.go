package chart

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/kiwoom"
	"github.com/kstocklab/finsight/internal/models"
)

// Fetcher is the broker chart surface the worker drives. Satisfied by
// *kiwoom.Client.
type Fetcher interface {
	MinuteChart(ctx context.Context, ticker string, scope int) (*kiwoom.ChartResponse, error)
	DailyChart(ctx context.Context, ticker, baseDate string) (*kiwoom.ChartResponse, error)
	WeeklyChart(ctx context.Context, ticker, baseDate string) (*kiwoom.ChartResponse, error)
	MonthlyChart(ctx context.Context, ticker, baseDate string) (*kiwoom.ChartResponse, error)
	YearlyChart(ctx context.Context, ticker, baseDate string) (*kiwoom.ChartResponse, error)
}

const (
	maxFetchAttempts = 3
	backoffBase      = 500 * time.Millisecond
)

// Worker answers a chart request end to end: select an initial resolution
// for the window, fetch, run the engine gates, and follow upgrade and
// downgrade directives until the result settles or the lattice terminates.
type Worker struct {
	fetcher Fetcher
	engine  *Engine
	logger  arbor.ILogger
}

// NewWorker creates a chart worker.
func NewWorker(fetcher Fetcher, engine *Engine, logger arbor.ILogger) *Worker {
	return &Worker{
		fetcher: fetcher,
		engine:  engine,
		logger:  logger,
	}
}

// GetChart fetches candles for ticker over [start, end].
func (w *Worker) GetChart(ctx context.Context, ticker string, start, end time.Time) (models.ChartResult, models.Resolution, error) {
	resolution, scope := SelectResolution(start, end)
	req := models.ChartRequest{
		Ticker:        kiwoom.NormalizeTicker(ticker),
		Resolution:    resolution,
		ExpectedStart: FormatDay(start),
		ExpectedEnd:   FormatDay(end),
		MinuteScope:   scope,
	}
	if err := req.Validate(); err != nil {
		return models.ErrorResult(err.Error()), resolution, err
	}
	return w.Run(ctx, req)
}

// Run drives a prepared request through the engine, following resolution
// directives. The lattice has five levels, so the loop is bounded.
func (w *Worker) Run(ctx context.Context, req models.ChartRequest) (models.ChartResult, models.Resolution, error) {
	var result models.ChartResult
	for hop := 0; hop < 6; hop++ {
		raw, err := w.fetchWithBackoff(ctx, req)
		if err != nil {
			w.logger.Warn().Err(err).
				Str("ticker", req.Ticker).
				Str("resolution", string(req.Resolution)).
				Msg("Broker fetch failed")
			return models.ErrorResult(err.Error()), req.Resolution, err
		}

		result = w.engine.Process(raw, req)
		switch result.Tag {
		case models.ChartUpgradeRequired, models.ChartDowngradeRequired:
			if result.Next == nil {
				return result, req.Resolution, nil
			}
			w.logger.Debug().
				Str("from", string(req.Resolution)).
				Str("to", string(*result.Next)).
				Str("reason", result.Message).
				Msg("Switching chart resolution")
			req.Resolution = *result.Next
		default:
			return result, req.Resolution, nil
		}
	}
	return result, req.Resolution, nil
}

// fetchWithBackoff retries broker HTTP failures with exponential backoff.
// Auth failures are not retried here; the client already refreshes once.
func (w *Worker) fetchWithBackoff(ctx context.Context, req models.ChartRequest) (*kiwoom.ChartResponse, error) {
	var lastErr error
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffBase << (attempt - 1)):
			}
		}
		raw, err := w.fetch(ctx, req)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("broker fetch failed after %d attempts: %w", maxFetchAttempts, lastErr)
}

func (w *Worker) fetch(ctx context.Context, req models.ChartRequest) (*kiwoom.ChartResponse, error) {
	baseDate := req.EffectiveBaseDate()
	switch req.Resolution {
	case models.ResolutionMinute:
		scope := req.MinuteScope
		if scope == 0 {
			scope = 5
		}
		return w.fetcher.MinuteChart(ctx, req.Ticker, scope)
	case models.ResolutionDay:
		return w.fetcher.DailyChart(ctx, req.Ticker, baseDate)
	case models.ResolutionWeek:
		return w.fetcher.WeeklyChart(ctx, req.Ticker, baseDate)
	case models.ResolutionMonth:
		return w.fetcher.MonthlyChart(ctx, req.Ticker, baseDate)
	case models.ResolutionYear:
		return w.fetcher.YearlyChart(ctx, req.Ticker, baseDate)
	}
	return nil, fmt.Errorf("unknown resolution %q", req.Resolution)
}
