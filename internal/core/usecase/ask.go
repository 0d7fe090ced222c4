package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/civiclens/planrag/internal/core/domain"
	"github.com/civiclens/planrag/internal/core/ports"
)

const insufficientInformationAnswer = "The available planning documents do not contain enough information to answer this question."

// AskUseCase runs the full pipeline for one question:
// classify → translate → agentic retrieval loop → grounded generation.
// All per-request state is local; the use case itself is safe for concurrent
// use.
type AskUseCase struct {
	municipalities ports.MunicipalityStore
	embedder       ports.Embedder
	generator      ports.AnswerGenerator
	translator     *TranslateUseCase
	retriever      *hybridRetriever
	rewriter       *queryRewriter
	tunables       domain.Tunables
}

func NewAskUseCase(
	municipalities ports.MunicipalityStore,
	embedder ports.Embedder,
	chunks ports.ChunkStore,
	chat ports.ChatModel,
	generator ports.AnswerGenerator,
	translator *TranslateUseCase,
	tunables domain.Tunables,
) *AskUseCase {
	tunables = normalizeTunables(tunables)
	return &AskUseCase{
		municipalities: municipalities,
		embedder:       embedder,
		generator:      generator,
		translator:     translator,
		retriever:      newHybridRetriever(chunks, tunables.CandidateMultiplier, tunables.SimilarityThreshold),
		rewriter:       newQueryRewriter(chat, tunables.MaxDistinctQueries),
		tunables:       tunables,
	}
}

func (uc *AskUseCase) Tunables() domain.Tunables {
	return uc.tunables
}

func (uc *AskUseCase) Ask(
	ctx context.Context,
	municipalityID int,
	question string,
	opts domain.AskOptions,
) (*domain.RAGResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question is required"))
	}

	municipality, err := uc.municipalities.Get(ctx, municipalityID)
	if err != nil {
		if domain.IsKind(err, domain.ErrMunicipalityNotFound) {
			return nil, err
		}
		return nil, classifyTechnicalFailure("resolve municipality", err)
	}

	classification := classifyQuestion(question)
	topK := classification.SuggestedTopK
	if opts.TopK > 0 {
		topK = opts.TopK
	}

	translation, err := uc.translator.TranslateIfNeeded(ctx, question, municipalityID, domain.TranslateOptions{
		Verbose: opts.Verbose,
	})
	if err != nil {
		// The translator degrades internally; an error here is a context fault.
		return nil, classifyTechnicalFailure("translate question", err)
	}
	retrievalQuery := translation.TranslatedQuery

	vector, err := uc.embedder.EmbedQuery(ctx, retrievalQuery)
	if err != nil {
		return nil, classifyTechnicalFailure("embed query", err)
	}

	controller := newAgentController(uc.retriever, uc.embedder, uc.rewriter, uc.tunables)
	run, err := controller.run(
		ctx,
		municipalityID,
		retrievalQuery,
		vector,
		topK,
		profileFor(classification.Type, uc.tunables),
		opts.ForceSemanticOnly,
		opts.Verbose,
	)
	if err != nil {
		return nil, err
	}

	sources := run.best.candidates
	metadata := domain.ResponseMetadata{
		TopK:             topK,
		AvgSimilarity:    run.best.avgSim,
		SearchMethod:     run.searchMethod,
		QueryClass:       classification.Type,
		IterationsUsed:   run.iterationsUsed,
		QueriesRewritten: run.queriesRewritten,
		WasTranslated:    translation.WasTranslated,
	}

	// No usable context after exhausting iterations is a normal outcome,
	// not an error: answer deliberately instead of generating over nothing.
	if len(sources) == 0 {
		return &domain.RAGResponse{
			Answer:   insufficientInformationAnswer,
			Sources:  []domain.ScoredCandidate{},
			Metadata: metadata,
		}, nil
	}

	generated, err := uc.generator.GenerateAnswer(ctx, question, sources, municipality.Name)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || domain.IsKind(err, domain.ErrTimeout) {
			return nil, domain.WrapError(domain.ErrTimeout, "generate answer", err)
		}
		return nil, domain.WrapError(domain.ErrGeneration, "generate answer", err)
	}

	metadata.TokensUsed = generated.TokensUsed
	return &domain.RAGResponse{
		Answer:   generated.Text,
		Sources:  sources,
		Metadata: metadata,
	}, nil
}

// normalizeTunables fills defaults and restores the weight-pair invariants,
// so every retrieval computes combined scores from weights that sum to 1.
func normalizeTunables(t domain.Tunables) domain.Tunables {
	if t.SemanticWeight <= 0 && t.KeywordWeight <= 0 {
		t.SemanticWeight, t.KeywordWeight = 0.7, 0.3
	}
	t.SemanticWeight, t.KeywordWeight = normalizeWeightPair(t.SemanticWeight, t.KeywordWeight)

	if t.CodeSemanticWeight <= 0 && t.CodeKeywordWeight <= 0 {
		t.CodeSemanticWeight, t.CodeKeywordWeight = 0.5, 0.5
	}
	t.CodeSemanticWeight, t.CodeKeywordWeight = normalizeWeightPair(t.CodeSemanticWeight, t.CodeKeywordWeight)

	if t.CandidateMultiplier <= 0 {
		t.CandidateMultiplier = 4
	}
	if t.SimilarityThreshold <= 0 {
		t.SimilarityThreshold = 0.5
	}
	if t.RerankFloor <= 0 {
		t.RerankFloor = 0.35
	}
	if t.RelevanceThreshold <= 0 {
		t.RelevanceThreshold = 0.6
	}
	if t.MinSourcesRequired <= 0 {
		t.MinSourcesRequired = 2
	}
	if t.MaxIterations <= 0 {
		t.MaxIterations = 3
	}
	if t.MaxDistinctQueries <= 0 {
		t.MaxDistinctQueries = 4
	}
	if t.DefaultCorpusLang == "" {
		t.DefaultCorpusLang = langCatalan
	}
	return t
}

func normalizeWeightPair(semantic, keyword float64) (float64, float64) {
	if semantic < 0 {
		semantic = 0
	}
	if keyword < 0 {
		keyword = 0
	}
	total := semantic + keyword
	switch {
	case total == 0:
		return 1, 0
	case math.Abs(total-1) < 1e-9:
		return semantic, keyword
	}
	return semantic / total, keyword / total
}
