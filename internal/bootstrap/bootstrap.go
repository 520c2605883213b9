package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kondrup/gdprscan/internal/config"
	"github.com/kondrup/gdprscan/internal/core/ports"
	"github.com/kondrup/gdprscan/internal/core/usecase"
	"github.com/kondrup/gdprscan/internal/infrastructure/entities"
	"github.com/kondrup/gdprscan/internal/infrastructure/extractor"
	"github.com/kondrup/gdprscan/internal/infrastructure/language"
	"github.com/kondrup/gdprscan/internal/infrastructure/model"
	"github.com/kondrup/gdprscan/internal/infrastructure/notify"
	"github.com/kondrup/gdprscan/internal/infrastructure/queue/nats"
	"github.com/kondrup/gdprscan/internal/infrastructure/repository/postgres"
	"github.com/kondrup/gdprscan/internal/infrastructure/resilience"
	"github.com/kondrup/gdprscan/internal/infrastructure/search/elastic"
	"github.com/kondrup/gdprscan/internal/infrastructure/storage/localfs"
	"github.com/kondrup/gdprscan/internal/observability/logging"
)

type App struct {
	Config config.Config
	Policy config.Policy
	Logger *slog.Logger

	Queue       ports.MessageQueue
	ScanUC      *usecase.ScanUseCase
	ProcessUC   ports.DocumentProcessor
	AggregateUC ports.RiskAggregator

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := logging.NewJSONLogger("gdprscan-worker", cfg.LogLevel)

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	docs := postgres.NewDocumentRepository(db)
	scans := postgres.NewScanRepository(db)
	mentions := postgres.NewMentionRepository(db)
	persons := postgres.NewPersonRepository(db)
	risks := postgres.NewRiskRepository(db)

	source, err := localfs.New(cfg.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("init source storage: %w", err)
	}
	archive, err := localfs.New(cfg.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("init archive storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	detector, err := language.NewDetector(policy.AllowedLanguages)
	if err != nil {
		return nil, fmt.Errorf("init language detector: %w", err)
	}

	search := elastic.New(cfg.ElasticURL, elastic.Options{
		Languages:        policy.AllowedLanguages,
		HighRiskKeywords: policy.HighRiskKeywords,
		CommonNames:      policy.CommonNames,
		MaxMiddleNames:   policy.MaxMiddleNames,
		Executor:         executor,
	}, logger)

	models := model.NewStore(cfg.ModelPath)
	cache := usecase.NewModelCache(models)
	entityExtractor := entities.New(policy.PhoneRegion, policy.MaxEntityLength, logger)
	notifier := notify.NewWebhook(cfg.NotifyWebhookURL, logger)

	ingestUC := usecase.NewIngestUseCase(
		docs,
		extractor.New(),
		detector,
		policy.AllowedLanguages,
		policy.MinLanguageConfidence,
		logger,
	)
	classifyUC := usecase.NewClassifyUseCase(docs, models, cache, policy.DefaultLanguage(), logger)
	aggregateUC := usecase.NewAggregateUseCase(persons, mentions, risks, search, logger)

	debounce := usecase.NewDebouncer()
	delay := time.Duration(cfg.AggregationDebounceSeconds) * time.Second
	scanUC := usecase.NewScanUseCase(scans, queue, notifier, aggregateUC, debounce, delay, logger)

	processUC := usecase.NewProcessUseCase(
		source,
		archive,
		ingestUC,
		classifyUC,
		entityExtractor,
		docs,
		mentions,
		scanUC,
		policy.StorageRetryAttempts,
		logger,
	)

	return &App{
		Config: cfg,
		Policy: policy,
		Logger: logger,

		Queue:       queue,
		ScanUC:      scanUC,
		ProcessUC:   processUC,
		AggregateUC: aggregateUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
