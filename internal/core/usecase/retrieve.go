package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/civiclens/planrag/internal/core/domain"
	"github.com/civiclens/planrag/internal/core/ports"
)

const (
	searchMethodHybrid           = "hybrid"
	searchMethodSemantic         = "semantic"
	searchMethodSemanticFallback = "semantic_fallback"
)

type weightProfile struct {
	semantic float64
	keyword  float64
}

type hybridRetriever struct {
	chunks              ports.ChunkStore
	candidateMultiplier int
	threshold           float64
}

func newHybridRetriever(chunks ports.ChunkStore, candidateMultiplier int, threshold float64) *hybridRetriever {
	if candidateMultiplier <= 0 {
		candidateMultiplier = 4
	}
	return &hybridRetriever{
		chunks:              chunks,
		candidateMultiplier: candidateMultiplier,
		threshold:           threshold,
	}
}

// retrieve runs the fused semantic+keyword candidate query and returns the
// full threshold-filtered set, sorted; the caller reranks and truncates to
// its depth. A keyword-side failure degrades to semantic-only retrieval; a
// semantic failure is fatal. The second return value is the search method
// actually used.
func (r *hybridRetriever) retrieve(
	ctx context.Context,
	municipalityID int,
	queryText string,
	queryVector []float32,
	topK int,
	profile weightProfile,
	semanticOnly bool,
) ([]domain.ScoredCandidate, string, error) {
	candidateLimit := topK * r.candidateMultiplier

	semantic, err := r.chunks.SearchByVector(ctx, municipalityID, queryVector, candidateLimit)
	if err != nil {
		return nil, "", domain.WrapError(domain.ErrTemporary, "semantic search", err)
	}

	if semanticOnly {
		return filterByScore(withSemanticScores(semantic), r.threshold), searchMethodSemantic, nil
	}

	keyword, err := r.chunks.SearchByText(ctx, municipalityID, sanitizeKeywordQuery(queryText), candidateLimit)
	if err != nil {
		slog.Warn("keyword_search_failed_falling_back",
			"municipality_id", municipalityID,
			"error", err,
		)
		return filterByScore(withSemanticScores(semantic), r.threshold), searchMethodSemanticFallback, nil
	}

	fused := fuseCandidatesWeighted(semantic, keyword, profile)
	return filterByScore(fused, r.threshold), searchMethodHybrid, nil
}

// fuseCandidatesWeighted unions both candidate sets, deduplicating by
// (document_url, chunk_index). The first-seen entry wins, semantic results
// considered before keyword results; a chunk present on both sides keeps the
// semantic entry and absorbs the keyword rank so it carries both scores.
func fuseCandidatesWeighted(semantic, keyword []domain.ScoredCandidate, profile weightProfile) []domain.ScoredCandidate {
	fused := make([]domain.ScoredCandidate, 0, len(semantic)+len(keyword))
	index := make(map[string]int, len(semantic)+len(keyword))

	for _, candidate := range semantic {
		key := candidate.Key()
		if _, seen := index[key]; seen {
			continue
		}
		index[key] = len(fused)
		fused = append(fused, candidate)
	}

	for _, candidate := range keyword {
		key := candidate.Key()
		if at, seen := index[key]; seen {
			if fused[at].KeywordRank == 0 {
				fused[at].KeywordRank = candidate.KeywordRank
			}
			continue
		}
		index[key] = len(fused)
		fused = append(fused, candidate)
	}

	for i := range fused {
		fused[i].CombinedScore = combinedScore(fused[i], profile)
	}

	sortCandidatesByScore(fused)
	return fused
}

// combinedScore blends the two signals when both are present. A candidate
// seen by only one side keeps that side's raw score: the weights split trust
// between two present signals, and a missing signal carries no evidence
// against the chunk. Weighting a single-sided score down would push every
// keyword-only hit under the retrieval threshold.
func combinedScore(candidate domain.ScoredCandidate, profile weightProfile) float64 {
	switch {
	case candidate.KeywordRank == 0:
		return candidate.SemanticSimilarity
	case candidate.SemanticSimilarity == 0:
		return candidate.KeywordRank
	default:
		return profile.semantic*candidate.SemanticSimilarity + profile.keyword*candidate.KeywordRank
	}
}

// withSemanticScores prepares semantic-only results for threshold filtering:
// without a keyword component the combined score is the raw similarity.
func withSemanticScores(candidates []domain.ScoredCandidate) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].CombinedScore = out[i].SemanticSimilarity
	}
	sortCandidatesByScore(out)
	return out
}

func filterByScore(candidates []domain.ScoredCandidate, threshold float64) []domain.ScoredCandidate {
	out := candidates[:0:len(candidates)]
	for _, candidate := range candidates {
		if candidate.CombinedScore >= threshold {
			out = append(out, candidate)
		}
	}
	return out
}

func truncateCandidates(candidates []domain.ScoredCandidate, limit int) []domain.ScoredCandidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

func sortCandidatesByScore(candidates []domain.ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CombinedScore != candidates[j].CombinedScore {
			return candidates[i].CombinedScore > candidates[j].CombinedScore
		}
		if candidates[i].DocumentURL != candidates[j].DocumentURL {
			return candidates[i].DocumentURL < candidates[j].DocumentURL
		}
		return candidates[i].ChunkIndex < candidates[j].ChunkIndex
	})
}

// sanitizeKeywordQuery strips punctuation while preserving zoning codes and
// hyphenated terms, so "clau 20a-HP?" keeps "20a-HP".
func sanitizeKeywordQuery(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for _, r := range query {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r > 127:
			// Accented letters survive; the text index handles folding.
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func averageSimilarity(candidates []domain.ScoredCandidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	sum := 0.0
	for _, candidate := range candidates {
		sum += candidate.SemanticSimilarity
	}
	return sum / float64(len(candidates))
}

func profileFor(class domain.QueryType, tunables domain.Tunables) weightProfile {
	if class == domain.QueryCodeLookup {
		return weightProfile{semantic: tunables.CodeSemanticWeight, keyword: tunables.CodeKeywordWeight}
	}
	return weightProfile{semantic: tunables.SemanticWeight, keyword: tunables.KeywordWeight}
}
