package agents

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/models"
	"github.com/kstocklab/finsight/internal/services/chart"
	"github.com/kstocklab/finsight/internal/services/llm"
)

const apologyAnswer = "죄송합니다. 질문을 처리하는 중 문제가 발생했습니다. 잠시 후 다시 시도해 주세요."

// QueryRequest is the /query payload.
type QueryRequest struct {
	Query        string         `json:"query"`
	SessionID    string         `json:"session_id,omitempty"`
	PinnedChunks []models.Chunk `json:"pinned_chunks,omitempty"`
	PDFFilename  string         `json:"pdf_filename,omitempty"`
}

// QueryResponse is the /query reply.
type QueryResponse struct {
	Success        bool              `json:"success"`
	Answer         string            `json:"answer"`
	Error          string            `json:"error,omitempty"`
	SessionID      string            `json:"session_id"`
	ProcessingTime float64           `json:"processing_time"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

var tickerPattern = regexp.MustCompile(`\b(\d{6})(\.(?:KS|KQ|NX))?\b`)

// Supervisor routes a natural-language question to the chart worker, the
// document answerer, or the general LLM fallback, and records the exchange
// on the session.
type Supervisor struct {
	rules    *RoutingRules
	chart    *chart.Worker
	provider llm.VisionProvider
	sessions *SessionStore
	logger   arbor.ILogger
}

func NewSupervisor(rules *RoutingRules, chartWorker *chart.Worker, provider llm.VisionProvider, sessions *SessionStore, logger arbor.ILogger) *Supervisor {
	return &Supervisor{
		rules:    rules,
		chart:    chartWorker,
		provider: provider,
		sessions: sessions,
		logger:   logger,
	}
}

// Answer processes one query end to end. Errors surface as a failed
// response with a neutral apology; the transport never sees a panic.
func (s *Supervisor) Answer(ctx context.Context, req QueryRequest) QueryResponse {
	started := time.Now()

	resp, panicked := func() (r QueryResponse, panicked bool) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Str("panic", fmt.Sprint(rec)).Msg("Query handling panicked")
				panicked = true
			}
		}()
		return s.answer(ctx, req), false
	}()

	if panicked {
		resp = QueryResponse{Success: false, Answer: apologyAnswer, Error: "internal error", SessionID: req.SessionID}
	}
	resp.ProcessingTime = time.Since(started).Seconds()
	return resp
}

func (s *Supervisor) answer(ctx context.Context, req QueryRequest) QueryResponse {
	session, err := s.sessions.GetOrCreate(req.SessionID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Session lookup failed")
		return QueryResponse{Success: false, Answer: apologyAnswer, Error: err.Error(), SessionID: req.SessionID}
	}

	route := s.rules.Classify(req.Query, len(req.PinnedChunks) > 0)
	s.logger.Info().Str("session_id", session.SessionID).Str("route", string(route)).Msg("Dispatching query")

	var answer string
	switch route {
	case RouteChart:
		answer, err = s.answerChart(ctx, req.Query)
	case RouteDocument:
		answer, err = s.answerDocument(ctx, req)
	default:
		answer, err = s.provider.SummarizeText(ctx, generalPrompt(req.Query))
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("route", string(route)).Msg("Worker failed to answer")
		return QueryResponse{Success: false, Answer: apologyAnswer, Error: err.Error(), SessionID: session.SessionID}
	}

	turn := models.SessionTurn{
		Query:     req.Query,
		Answer:    answer,
		Worker:    string(route),
		Timestamp: time.Now().UTC(),
	}
	if err := s.sessions.AppendTurn(session, turn); err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.SessionID).Msg("Failed to persist session turn")
	}

	return QueryResponse{
		Success:   true,
		Answer:    answer,
		SessionID: session.SessionID,
		Metadata:  map[string]string{"worker": string(route)},
	}
}

// answerChart extracts the ticker and date span from the question, drives
// the resolution engine to a final result and renders it.
func (s *Supervisor) answerChart(ctx context.Context, query string) (string, error) {
	match := tickerPattern.FindStringSubmatch(query)
	if match == nil {
		return "", fmt.Errorf("no 6-digit ticker found in query")
	}
	ticker := match[0]

	start, end := extractDateRange(query, time.Now())
	result, resolution, err := s.chart.GetChart(ctx, ticker, start, end)
	if err != nil {
		return "", err
	}

	switch result.Tag {
	case models.ChartSuccess:
		table := chart.MarkdownTable(result.Rows)
		return fmt.Sprintf("%s 종목의 %s 기준 차트 데이터입니다.\n\n%s", ticker, resolution, table), nil
	case models.ChartNoData:
		return fmt.Sprintf("%s 종목은 요청하신 기간에 거래 데이터가 없습니다.", ticker), nil
	default:
		return "", fmt.Errorf("chart lookup ended without data: %s", result.Message)
	}
}

func (s *Supervisor) answerDocument(ctx context.Context, req QueryRequest) (string, error) {
	var sb strings.Builder
	sb.WriteString("다음은 애널리스트 보고서에서 발췌한 내용입니다.\n\n")
	for _, chunk := range req.PinnedChunks {
		fmt.Fprintf(&sb, "[%s, p.%d] %s\n", chunk.Label, chunk.Page, chunk.Content)
	}
	fmt.Fprintf(&sb, "\n위 발췌 내용에 근거하여 다음 질문에 한국어로 답하세요: %s", req.Query)
	return s.provider.SummarizeText(ctx, sb.String())
}

func generalPrompt(query string) string {
	return "당신은 한국 주식시장 전문 애널리스트입니다. 다음 질문에 한국어로 간결하게 답하세요: " + query
}

var dateRangePattern = regexp.MustCompile(`(\d{4})[.\-/년\s]*(\d{1,2})[.\-/월\s]*(\d{1,2})`)

// extractDateRange pulls up to two explicit dates from the query. With one
// date the range runs from it to today; with none, the trailing 3 months.
func extractDateRange(query string, now time.Time) (time.Time, time.Time) {
	matches := dateRangePattern.FindAllStringSubmatch(query, 2)

	parse := func(m []string) (time.Time, bool) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, false
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
	}

	switch len(matches) {
	case 2:
		first, ok1 := parse(matches[0])
		second, ok2 := parse(matches[1])
		if ok1 && ok2 {
			if second.Before(first) {
				first, second = second, first
			}
			return first, second
		}
	case 1:
		if first, ok := parse(matches[0]); ok {
			return first, now
		}
	}
	return now.AddDate(0, -3, 0), now
}
