package usecase

import "github.com/civiclens/planrag/internal/core/domain"

// rerankCandidates is a cheap second-pass sanity filter over fused
// candidates: drop everything under an absolute quality floor (looser than
// the retrieval threshold), re-sort deterministically and truncate. It is a
// no-op when the candidate count does not exceed topK.
func rerankCandidates(candidates []domain.ScoredCandidate, topK int, floor float64) []domain.ScoredCandidate {
	if topK <= 0 || len(candidates) <= topK {
		return candidates
	}

	kept := make([]domain.ScoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.CombinedScore >= floor {
			kept = append(kept, candidate)
		}
	}

	sortCandidatesByScore(kept)
	return truncateCandidates(kept, topK)
}
