package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/civiclens/planrag/internal/core/domain"
	"github.com/civiclens/planrag/internal/core/ports"
)

type TranslateLimits struct {
	BatchWorkers   int
	BatchRate      rate.Limit
	BatchRateBurst int
}

type TranslateUseCase struct {
	municipalities ports.MunicipalityStore
	chat           ports.ChatModel
	defaultCorpus  string
	limits         TranslateLimits
}

func NewTranslateUseCase(
	municipalities ports.MunicipalityStore,
	chat ports.ChatModel,
	defaultCorpusLanguage string,
	limits TranslateLimits,
) *TranslateUseCase {
	if defaultCorpusLanguage == "" {
		defaultCorpusLanguage = langCatalan
	}
	if limits.BatchWorkers <= 0 {
		limits.BatchWorkers = 4
	}
	if limits.BatchWorkers > 8 {
		limits.BatchWorkers = 8
	}
	if limits.BatchRate <= 0 {
		limits.BatchRate = rate.Limit(2)
	}
	if limits.BatchRateBurst <= 0 {
		limits.BatchRateBurst = 1
	}
	return &TranslateUseCase{
		municipalities: municipalities,
		chat:           chat,
		defaultCorpus:  defaultCorpusLanguage,
		limits:         limits,
	}
}

// TranslateIfNeeded translates the question into the municipality's corpus
// language. Translation failures are never fatal: retrieval proceeds with the
// original question.
func (uc *TranslateUseCase) TranslateIfNeeded(
	ctx context.Context,
	question string,
	municipalityID int,
	opts domain.TranslateOptions,
) (domain.TranslationResult, error) {
	source := detectLanguage(question)
	target := uc.resolveCorpusLanguage(ctx, municipalityID)

	result := domain.TranslationResult{
		TranslatedQuery: question,
		SourceLanguage:  source,
		TargetLanguage:  target,
	}

	if source == target && !opts.Force {
		if opts.Verbose {
			slog.Debug("translation_skipped", "language", source, "municipality_id", municipalityID)
		}
		return result, nil
	}

	translated, err := uc.translateQuery(ctx, question, source, target)
	if err != nil {
		slog.Warn("translation_failed_using_original",
			"municipality_id", municipalityID,
			"source_language", source,
			"target_language", target,
			"error", err,
		)
		return result, nil
	}

	result.TranslatedQuery = translated
	result.WasTranslated = true
	return result, nil
}

// TranslateBatch translates many questions with a bounded worker pool and
// inter-call pacing. Used by offline tooling only; unlike the interactive
// path, per-question failures keep the original text.
func (uc *TranslateUseCase) TranslateBatch(
	ctx context.Context,
	questions []string,
	municipalityID int,
) ([]domain.TranslatedQuestion, error) {
	if len(questions) == 0 {
		return nil, nil
	}

	target := uc.resolveCorpusLanguage(ctx, municipalityID)
	limiter := rate.NewLimiter(uc.limits.BatchRate, uc.limits.BatchRateBurst)
	out := make([]domain.TranslatedQuestion, len(questions))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(uc.limits.BatchWorkers)

	for i, question := range questions {
		group.Go(func() error {
			if err := limiter.Wait(groupCtx); err != nil {
				return err
			}

			item := domain.TranslatedQuestion{Original: question, Translated: question}
			source := detectLanguage(question)
			if source != target {
				translated, err := uc.translateQuery(groupCtx, question, source, target)
				if err != nil {
					slog.Warn("batch_translation_item_failed", "index", i, "error", err)
				} else {
					item.Translated = translated
				}
			}
			out[i] = item
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("translate batch: %w", err)
	}
	return out, nil
}

func (uc *TranslateUseCase) translateQuery(ctx context.Context, question, source, target string) (string, error) {
	system := buildTranslationSystemPrompt(source, target)
	completion, err := uc.chat.Complete(ctx, system, question)
	if err != nil {
		return "", fmt.Errorf("translation completion: %w", err)
	}

	translated := strings.TrimSpace(completion.Text)
	if translated == "" {
		return "", fmt.Errorf("empty translation result")
	}
	return translated, nil
}

func (uc *TranslateUseCase) resolveCorpusLanguage(ctx context.Context, municipalityID int) string {
	municipality, err := uc.municipalities.Get(ctx, municipalityID)
	if err != nil || municipality == nil || municipality.CorpusLanguage == "" {
		return uc.defaultCorpus
	}
	return municipality.CorpusLanguage
}

func buildTranslationSystemPrompt(source, target string) string {
	return fmt.Sprintf(`You translate municipal planning questions from %s to %s.
Rules:
- Return ONLY the translated question, nothing else.
- Do NOT answer the question.
- Keep technical codes and references exactly as written (for example "13c1", "20a", document acronyms).
- Keep proper nouns unchanged.`, languageName(source), languageName(target))
}

func languageName(code string) string {
	switch code {
	case langCatalan:
		return "Catalan"
	case langSpanish:
		return "Spanish"
	case langEnglish:
		return "English"
	default:
		return code
	}
}
