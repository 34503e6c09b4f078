package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/common"
	"github.com/kstocklab/finsight/internal/handlers"
	"github.com/kstocklab/finsight/internal/kiwoom"
	"github.com/kstocklab/finsight/internal/services/agents"
	"github.com/kstocklab/finsight/internal/services/chart"
	"github.com/kstocklab/finsight/internal/services/ingest"
	"github.com/kstocklab/finsight/internal/services/llm"
	"github.com/kstocklab/finsight/internal/services/state"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	// Broker access
	TokenKeeper  *kiwoom.TokenKeeper
	BrokerClient *kiwoom.Client

	// Chart analytics
	ChartEngine *chart.Engine
	ChartWorker *chart.Worker

	// Ingestion pipeline
	StateStore    *state.Store
	IngestService *ingest.Service
	Janitor       *ingest.Janitor

	// Agents
	LLMProvider llm.VisionProvider
	Sessions    *agents.SessionStore
	Supervisor  *agents.Supervisor

	// HTTP handlers
	QueryHandler  *handlers.QueryHandler
	UploadHandler *handlers.UploadHandler
	WSHandler     *handlers.WebSocketHandler
	HealthHandler *handlers.HealthHandler
}

// New creates the application with all dependencies wired.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := a.initBroker(); err != nil {
		cancel()
		return nil, err
	}
	a.initChart()

	if err := a.initLLM(ctx); err != nil {
		cancel()
		return nil, err
	}
	if err := a.initIngestion(); err != nil {
		cancel()
		return nil, err
	}
	if err := a.initAgents(); err != nil {
		cancel()
		return nil, err
	}

	a.QueryHandler = handlers.NewQueryHandler(a.Supervisor, logger)
	a.UploadHandler = handlers.NewUploadHandler(a.IngestService, logger)
	a.HealthHandler = handlers.NewHealthHandler(logger)

	return a, nil
}

func (a *App) initBroker() error {
	appKey, err := readKeyFile(a.Config.Broker.AppKeyFile)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Broker app key unavailable, chart queries will fail until provided")
	}
	secretKey, err := readKeyFile(a.Config.Broker.SecretKeyFile)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Broker secret key unavailable, chart queries will fail until provided")
	}

	a.TokenKeeper = kiwoom.NewTokenKeeper(a.Config.Broker.BaseURL, appKey, secretKey,
		a.Config.Broker.TokenFile, kiwoom.WithTokenLogger(a.Logger))
	a.BrokerClient = kiwoom.NewClient(a.TokenKeeper,
		kiwoom.WithBaseURL(a.Config.Broker.BaseURL),
		kiwoom.WithLogger(a.Logger))
	return nil
}

func (a *App) initChart() {
	a.ChartEngine = chart.NewEngine(a.Logger,
		chart.WithMaxRows(a.Config.Chart.MaxRows),
		chart.WithAuditDir(a.Config.Chart.AuditDir))
	a.ChartWorker = chart.NewWorker(a.BrokerClient, a.ChartEngine, a.Logger)
}

func (a *App) initLLM(ctx context.Context) error {
	provider, err := llm.NewProvider(ctx, &a.Config.LLM, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vision LLM provider: %w", err)
	}
	a.LLMProvider = provider
	return nil
}

func (a *App) initIngestion() error {
	if err := os.MkdirAll(filepath.Dir(a.Config.Ingest.StateFile), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	a.StateStore = state.NewStore(a.Config.Ingest.StateFile, a.Logger)

	renderer := ingest.NewFitzRenderer()
	a.WSHandler = handlers.NewWebSocketHandler(a.Logger)

	analyzerKey := os.Getenv(a.Config.Analyzer.APIKeyEnv)
	if analyzerKey == "" {
		a.Logger.Warn().Str("env", a.Config.Analyzer.APIKeyEnv).
			Msg("Analyzer API key not set, ingestion will fail until provided")
	}

	pipeline := ingest.NewPipeline(ingest.PipelineOptions{
		Splitter: ingest.NewSplitter(a.Config.Ingest.BatchSize, a.Logger),
		Analyzer: ingest.NewAnalyzer(a.Config.Analyzer.BaseURL, analyzerKey,
			a.Config.Ingest.AnalyzerDPI, renderer, a.Logger,
			ingest.WithAnalyzerRetries(a.Config.Analyzer.MaxRetries)),
		Cropper: ingest.NewCropper(renderer, a.Config.Ingest.AnalyzerDPI,
			a.Config.Ingest.RenderDPI, a.Logger),
		Summarizer: ingest.NewSummarizer(a.LLMProvider,
			a.Config.LLM.RequestsPerSecond, a.Config.LLM.Burst, a.Logger),
		Store:     a.StateStore,
		Publisher: a.WSHandler,
		WorkDir:   a.Config.Ingest.WorkDir,
		Logger:    a.Logger,
	})

	a.IngestService = ingest.NewService(ingest.ServiceOptions{
		Pipeline:    pipeline,
		Store:       a.StateStore,
		Renderer:    renderer,
		UploadDir:   a.Config.Ingest.UploadDir,
		Timeout:     a.Config.IngestTimeout(),
		AnalyzerDPI: a.Config.Ingest.AnalyzerDPI,
		RenderDPI:   a.Config.Ingest.RenderDPI,
		Logger:      a.Logger,
	})
	a.IngestService.Start(a.ctx)

	if a.Config.Retention.Enabled {
		a.Janitor = ingest.NewJanitor(a.Config.Ingest.WorkDir, a.Config.RetentionMaxAge(), a.Logger)
		if err := a.Janitor.Start(a.Config.Retention.Schedule); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) initAgents() error {
	if a.Config.Storage.Badger.ResetOnStartup {
		if err := os.RemoveAll(a.Config.Storage.Badger.Path); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to reset session store")
		}
	}
	sessions, err := agents.OpenSessionStore(a.Config.Storage.Badger.Path, a.Logger)
	if err != nil {
		return err
	}
	a.Sessions = sessions

	rules, err := agents.LoadRules(a.Config.Agents.RulesFile)
	if err != nil {
		return err
	}
	a.Supervisor = agents.NewSupervisor(rules, a.ChartWorker, a.LLMProvider, sessions, a.Logger)
	return nil
}

// Shutdown stops background work and releases storage.
func (a *App) Shutdown() {
	a.Logger.Info().Msg("Shutting down application...")

	a.cancelCtx()
	if a.Janitor != nil {
		a.Janitor.Stop()
	}
	a.IngestService.Wait()
	if a.Sessions != nil {
		if err := a.Sessions.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close session store")
		}
	}
	a.Logger.Info().Msg("Application stopped")
}

func readKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read key file %s: %w", path, err)
	}
	key := string(data)
	for len(key) > 0 && (key[len(key)-1] == '\n' || key[len(key)-1] == '\r' || key[len(key)-1] == ' ') {
		key = key[:len(key)-1]
	}
	return key, nil
}
