package bootstrap

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/civiclens/planrag/internal/config"
	"github.com/civiclens/planrag/internal/core/domain"
	"github.com/civiclens/planrag/internal/core/ports"
	"github.com/civiclens/planrag/internal/core/usecase"
	"github.com/civiclens/planrag/internal/infrastructure/llm/ollama"
	"github.com/civiclens/planrag/internal/infrastructure/queue/nats"
	"github.com/civiclens/planrag/internal/infrastructure/repository/postgres"
	"github.com/civiclens/planrag/internal/infrastructure/resilience"
)

type App struct {
	Config config.Config

	Queue ports.TranslationQueue
	AskUC *usecase.AskUseCase
	// Translator carries the batch retry policy; the interactive ask path
	// has its own fail-fast instance wired inside AskUC.
	Translator *usecase.TranslateUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	chunks := postgres.NewChunkRepository(db)
	if err := chunks.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	municipalities := postgres.NewMunicipalityRepository(db)

	// Two resilience profiles: batch and queue traffic retries with backoff,
	// while calls serving an interactive question fail fast and leave the
	// retry decision to the caller.
	batchExecutor := resilience.NewExecutor(resilience.DefaultConfig())
	interactiveExecutor := resilience.NewExecutor(resilience.FailFastConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSJobsSubject, cfg.NATSResultsSubject, nats.Options{
		ResilienceExecutor: batchExecutor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init translation queue: %w", err)
	}

	interactiveClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, interactiveExecutor)
	embedder := ollama.NewEmbedder(interactiveClient)
	chat := ollama.NewChat(interactiveClient)
	generator := ollama.NewGenerator(interactiveClient)

	batchClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, batchExecutor)
	batchChat := ollama.NewChat(batchClient)

	limits := usecase.TranslateLimits{
		BatchWorkers:   cfg.BatchWorkers,
		BatchRate:      rate.Limit(cfg.BatchRatePerSec),
		BatchRateBurst: 1,
	}
	interactiveTranslator := usecase.NewTranslateUseCase(municipalities, chat, cfg.DefaultCorpusLanguage, limits)
	batchTranslator := usecase.NewTranslateUseCase(municipalities, batchChat, cfg.DefaultCorpusLanguage, limits)

	askUC := usecase.NewAskUseCase(municipalities, embedder, chunks, chat, generator, interactiveTranslator, domain.Tunables{
		SemanticWeight:      cfg.SemanticWeight,
		KeywordWeight:       cfg.KeywordWeight,
		CodeSemanticWeight:  cfg.CodeSemanticWeight,
		CodeKeywordWeight:   cfg.CodeKeywordWeight,
		CandidateMultiplier: cfg.CandidateMultiplier,
		SimilarityThreshold: cfg.SimilarityThreshold,
		RerankFloor:         cfg.RerankFloor,
		RelevanceThreshold:  cfg.RelevanceThreshold,
		MinSourcesRequired:  cfg.MinSourcesRequired,
		MaxIterations:       cfg.MaxIterations,
		MaxDistinctQueries:  cfg.MaxDistinctQueries,
		GenModel:            cfg.OllamaGenModel,
		EmbedModel:          cfg.OllamaEmbedModel,
		DefaultCorpusLang:   cfg.DefaultCorpusLanguage,
	})

	return &App{
		Config: cfg,

		Queue:      queue,
		AskUC:      askUC,
		Translator: batchTranslator,

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
