package ports

import (
	"context"

	"github.com/civiclens/planrag/internal/core/domain"
)

// Embedder builds the query vector for semantic retrieval.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore executes candidate queries against the indexed document
// collection of one municipality. SearchByVector fills SemanticSimilarity and
// leaves KeywordRank at zero; SearchByText does the opposite.
type ChunkStore interface {
	SearchByVector(ctx context.Context, municipalityID int, vector []float32, limit int) ([]domain.ScoredCandidate, error)
	SearchByText(ctx context.Context, municipalityID int, query string, limit int) ([]domain.ScoredCandidate, error)
}

// MunicipalityStore resolves municipality metadata (name, corpus language).
type MunicipalityStore interface {
	Get(ctx context.Context, id int) (*domain.Municipality, error)
}

// ChatModel is the opaque chat-completion backend, used for translation and
// query rewriting.
type ChatModel interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (domain.Completion, error)
}

// AnswerGenerator produces the grounded final answer over ranked context.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, chunks []domain.ScoredCandidate, municipalityName string) (domain.GeneratedAnswer, error)
}

// TranslationQueue carries offline batch-translation jobs for cmd/translator.
type TranslationQueue interface {
	PublishTranslationJob(ctx context.Context, job domain.TranslationJob) error
	SubscribeTranslationJobs(ctx context.Context, handler func(context.Context, domain.TranslationJob) error) error
	PublishTranslationResult(ctx context.Context, result domain.TranslationJobResult) error
}
