package ports

import (
	"context"

	"github.com/civiclens/planrag/internal/core/domain"
)

// QuestionService is the inbound contract for grounded question answering.
type QuestionService interface {
	Ask(ctx context.Context, municipalityID int, question string, opts domain.AskOptions) (*domain.RAGResponse, error)
	Tunables() domain.Tunables
}

// QuestionTranslator is the inbound contract for cross-language query
// handling, including the offline batch path.
type QuestionTranslator interface {
	TranslateIfNeeded(ctx context.Context, question string, municipalityID int, opts domain.TranslateOptions) (domain.TranslationResult, error)
	TranslateBatch(ctx context.Context, questions []string, municipalityID int) ([]domain.TranslatedQuestion, error)
}
