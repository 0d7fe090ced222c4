package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/civiclens/planrag/internal/core/domain"
	"github.com/civiclens/planrag/internal/core/ports"
)

// Reasons why an iteration's result set was judged insufficient. Only these
// quality reasons can trigger a rewrite; technical faults surface directly.
const (
	failureNoSources     = "no_sources"
	failureLowRelevance  = "low_relevance"
	failureTooFewSources = "too_few_sources"
)

// Grading weights: keyword-presence signal up to 0.40, semantic-match signal
// up to 0.40, document-count bonus up to 0.20, capped at 1.0.
const (
	gradeKeywordWeight  = 0.40
	gradeSemanticWeight = 0.40
	gradeCountWeight    = 0.20
	gradeCountTarget    = 5
)

type agentController struct {
	retriever *hybridRetriever
	embedder  ports.Embedder
	rewriter  *queryRewriter
	tunables  domain.Tunables
}

type iterationResult struct {
	queryText    string
	candidates   []domain.ScoredCandidate
	searchMethod string
	relevance    float64
	avgSim       float64
}

type agentRun struct {
	best             iterationResult
	history          []domain.IterationRecord
	iterationsUsed   int
	queriesRewritten int
	finalDecision    domain.Decision
	searchMethod     string
}

func newAgentController(
	retriever *hybridRetriever,
	embedder ports.Embedder,
	rewriter *queryRewriter,
	tunables domain.Tunables,
) *agentController {
	return &agentController{
		retriever: retriever,
		embedder:  embedder,
		rewriter:  rewriter,
		tunables:  tunables,
	}
}

// run drives the bounded retrieve→grade→decide loop. It terminates on accept
// or after MaxIterations, and always returns the best-seen iteration rather
// than the last one. Technical faults abort the loop without rewriting.
func (a *agentController) run(
	ctx context.Context,
	municipalityID int,
	question string,
	queryVector []float32,
	topK int,
	profile weightProfile,
	semanticOnly bool,
	verbose bool,
) (*agentRun, error) {
	run := &agentRun{}
	queryText := question
	vector := queryVector
	attempts := []string{question}

	for iteration := 1; iteration <= a.tunables.MaxIterations; iteration++ {
		run.iterationsUsed = iteration

		candidates, method, err := a.retriever.retrieve(ctx, municipalityID, queryText, vector, topK, profile, semanticOnly)
		if err != nil {
			// Infrastructure problems are not retrieval-quality problems:
			// no rewrite, surface to the caller.
			return nil, classifyTechnicalFailure("agent retrieve", err)
		}
		// The retriever returns the full filtered set; the second-pass
		// rerank applies the quality floor and cuts it down to topK.
		if len(candidates) > topK {
			candidates = rerankCandidates(candidates, topK, a.tunables.RerankFloor)
		}

		result := iterationResult{
			queryText:    queryText,
			candidates:   candidates,
			searchMethod: method,
			relevance:    gradeCandidates(queryText, candidates),
			avgSim:       averageSimilarity(candidates),
		}

		decision, reason := a.decide(result, iteration)
		run.history = append(run.history, domain.IterationRecord{
			Iteration:      iteration,
			QueryText:      queryText,
			SourcesFound:   len(result.candidates),
			RelevanceScore: result.relevance,
			AvgSimilarity:  result.avgSim,
			Decision:       decision,
		})
		run.best = betterIteration(run.best, result)
		run.finalDecision = decision

		if verbose {
			slog.Debug("agent_iteration",
				"iteration", iteration,
				"sources_found", len(result.candidates),
				"relevance", result.relevance,
				"decision", decision,
			)
		}

		if decision != domain.DecisionRewriteQuery {
			break
		}

		rewritten, ok, err := a.rewriter.rewrite(ctx, question, attempts, reason)
		if err != nil {
			slog.Warn("query_rewrite_failed", "iteration", iteration, "error", err)
			run.endWithoutRewrite()
			break
		}
		if !ok {
			run.endWithoutRewrite()
			break
		}

		newVector, err := a.embedder.EmbedQuery(ctx, rewritten)
		if err != nil {
			return nil, classifyTechnicalFailure("embed rewritten query", err)
		}

		attempts = append(attempts, rewritten)
		queryText = rewritten
		vector = newVector
		run.queriesRewritten++
	}

	run.searchMethod = run.best.searchMethod
	return run, nil
}

// endWithoutRewrite marks the loop as exhausted when a rewrite is declined
// or fails, keeping the recorded history consistent with the terminal state.
func (r *agentRun) endWithoutRewrite() {
	r.finalDecision = domain.DecisionMaxIterations
	if len(r.history) > 0 {
		r.history[len(r.history)-1].Decision = domain.DecisionMaxIterations
	}
}

// decide applies the acceptance rules in order. The returned reason is only
// meaningful for rewrite decisions.
func (a *agentController) decide(result iterationResult, iteration int) (domain.Decision, string) {
	retryable := iteration < a.tunables.MaxIterations

	switch {
	case len(result.candidates) == 0:
		if retryable {
			return domain.DecisionRewriteQuery, failureNoSources
		}
		return domain.DecisionMaxIterations, failureNoSources
	case result.relevance < a.tunables.RelevanceThreshold:
		if retryable {
			return domain.DecisionRewriteQuery, failureLowRelevance
		}
		return domain.DecisionMaxIterations, failureLowRelevance
	case len(result.candidates) < a.tunables.MinSourcesRequired:
		if retryable {
			return domain.DecisionRewriteQuery, failureTooFewSources
		}
		return domain.DecisionMaxIterations, failureTooFewSources
	default:
		return domain.DecisionAccept, ""
	}
}

// betterIteration is the best-seen reduction: higher relevance wins, ties
// broken by more sources. Guards against a pathological final rewrite
// producing a worse result than an earlier attempt.
func betterIteration(current, candidate iterationResult) iterationResult {
	if current.queryText == "" {
		return candidate
	}
	if candidate.relevance > current.relevance {
		return candidate
	}
	if candidate.relevance == current.relevance && len(candidate.candidates) > len(current.candidates) {
		return candidate
	}
	return current
}

// gradeCandidates scores a result set independently of retrieval ranking.
func gradeCandidates(queryText string, candidates []domain.ScoredCandidate) float64 {
	if len(candidates) == 0 {
		return 0
	}

	queryTokens := tokenizeQuery(queryText)
	keywordSignal := 0.0
	if len(queryTokens) > 0 {
		matched := 0
		for token := range queryTokens {
			for _, candidate := range candidates {
				if strings.Contains(strings.ToLower(candidate.Text), token) {
					matched++
					break
				}
			}
		}
		keywordSignal = float64(matched) / float64(len(queryTokens))
	}

	semanticSignal := averageSimilarity(candidates)
	if semanticSignal > 1 {
		semanticSignal = 1
	}

	countSignal := float64(len(candidates)) / gradeCountTarget
	if countSignal > 1 {
		countSignal = 1
	}

	score := gradeKeywordWeight*keywordSignal + gradeSemanticWeight*semanticSignal + gradeCountWeight*countSignal
	if score > 1 {
		score = 1
	}
	return score
}

func tokenizeQuery(queryText string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(sanitizeKeywordQuery(queryText)))
	out := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if len(field) < 3 && !hasDigit(field) {
			continue
		}
		out[field] = struct{}{}
	}
	return out
}

// classifyTechnicalFailure keeps the timeout/temporary distinction of the
// error taxonomy when surfacing infrastructure faults.
func classifyTechnicalFailure(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.WrapError(domain.ErrTimeout, operation, err)
	}
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrTimeout) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrTemporary, operation, err)
}
