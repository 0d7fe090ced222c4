package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/civiclens/planrag/internal/core/domain"
)

func agentTestTunables() domain.Tunables {
	return domain.Tunables{
		SemanticWeight:      0.7,
		KeywordWeight:       0.3,
		CodeSemanticWeight:  0.5,
		CodeKeywordWeight:   0.5,
		CandidateMultiplier: 4,
		SimilarityThreshold: 0.5,
		RerankFloor:         0.35,
		RelevanceThreshold:  0.6,
		MinSourcesRequired:  2,
		MaxIterations:       3,
		MaxDistinctQueries:  4,
	}
}

func newTestAgent(store *chunkStoreFake, embedder *embedderFake, chat *chatModelFake, tunables domain.Tunables) *agentController {
	retriever := newHybridRetriever(store, tunables.CandidateMultiplier, tunables.SimilarityThreshold)
	rewriter := newQueryRewriter(chat, tunables.MaxDistinctQueries)
	return newAgentController(retriever, embedder, rewriter, tunables)
}

func goodCandidates(n int) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, candidate("normativa.pdf", i, 0.85, 0))
	}
	return out
}

func TestAgentAcceptsOnFirstIteration(t *testing.T) {
	store := &chunkStoreFake{semanticResults: [][]domain.ScoredCandidate{goodCandidates(3)}}
	chat := &chatModelFake{}
	agent := newTestAgent(store, &embedderFake{}, chat, agentTestTunables())

	run, err := agent.run(context.Background(), 1, "alçada reguladora clau 20a1", []float32{0.1}, 5, weightProfile{semantic: 1, keyword: 0}, true, false)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if run.finalDecision != domain.DecisionAccept {
		t.Fatalf("finalDecision = %s, want %s", run.finalDecision, domain.DecisionAccept)
	}
	if run.iterationsUsed != 1 || run.queriesRewritten != 0 {
		t.Fatalf("iterations=%d rewrites=%d, want 1/0", run.iterationsUsed, run.queriesRewritten)
	}
	if chat.calls != 0 {
		t.Fatalf("no rewrite expected, chat called %d times", chat.calls)
	}
	if len(run.best.candidates) != 3 {
		t.Fatalf("best iteration lost candidates: %d", len(run.best.candidates))
	}
	if run.best.relevance < 0.6 {
		t.Fatalf("accepted iteration graded %v, below threshold", run.best.relevance)
	}
}

func TestAgentRewritesOnEmptyResultsThenAccepts(t *testing.T) {
	store := &chunkStoreFake{semanticResults: [][]domain.ScoredCandidate{nil, goodCandidates(3)}}
	chat := &chatModelFake{responses: []string{"alçada màxima edificable zona clau 20a1"}}
	embedder := &embedderFake{}
	agent := newTestAgent(store, embedder, chat, agentTestTunables())

	run, err := agent.run(context.Background(), 1, "alçada clau 20a1", []float32{0.1}, 5, weightProfile{semantic: 1, keyword: 0}, true, false)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if run.iterationsUsed != 2 || run.queriesRewritten != 1 {
		t.Fatalf("iterations=%d rewrites=%d, want 2/1", run.iterationsUsed, run.queriesRewritten)
	}
	if run.finalDecision != domain.DecisionAccept {
		t.Fatalf("finalDecision = %s, want %s", run.finalDecision, domain.DecisionAccept)
	}
	if len(run.history) != 2 || run.history[0].Decision != domain.DecisionRewriteQuery || run.history[1].Decision != domain.DecisionAccept {
		t.Fatalf("unexpected iteration history: %+v", run.history)
	}
	if len(embedder.calls) != 1 || embedder.calls[0] != "alçada màxima edificable zona clau 20a1" {
		t.Fatalf("rewritten query was not re-embedded: %v", embedder.calls)
	}
	if run.best.queryText != "alçada màxima edificable zona clau 20a1" {
		t.Fatalf("best iteration should carry the rewritten query, got %q", run.best.queryText)
	}
}

func TestAgentStopsAtMaxIterations(t *testing.T) {
	store := &chunkStoreFake{}
	chat := &chatModelFake{}
	agent := newTestAgent(store, &embedderFake{}, chat, agentTestTunables())

	run, err := agent.run(context.Background(), 1, "pregunta sense resultats", []float32{0.1}, 5, weightProfile{semantic: 1, keyword: 0}, true, false)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if run.iterationsUsed != 3 {
		t.Fatalf("iterationsUsed = %d, want 3", run.iterationsUsed)
	}
	if run.finalDecision != domain.DecisionMaxIterations {
		t.Fatalf("finalDecision = %s, want %s", run.finalDecision, domain.DecisionMaxIterations)
	}
	if run.queriesRewritten != 2 {
		t.Fatalf("queriesRewritten = %d, want 2", run.queriesRewritten)
	}
	if len(run.best.candidates) != 0 {
		t.Fatalf("expected empty best candidates, got %d", len(run.best.candidates))
	}
}

func TestAgentDistinctQueryCapStopsRewriting(t *testing.T) {
	tunables := agentTestTunables()
	tunables.MaxIterations = 6

	store := &chunkStoreFake{}
	chat := &chatModelFake{}
	agent := newTestAgent(store, &embedderFake{}, chat, tunables)

	run, err := agent.run(context.Background(), 1, "pregunta sense resultats", []float32{0.1}, 5, weightProfile{semantic: 1, keyword: 0}, true, false)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	// Original question plus three rewrites exhausts the distinct-query cap of
	// four before the iteration cap does.
	if run.queriesRewritten != 3 {
		t.Fatalf("queriesRewritten = %d, want 3", run.queriesRewritten)
	}
	if run.iterationsUsed != 4 {
		t.Fatalf("iterationsUsed = %d, want 4", run.iterationsUsed)
	}
	if run.finalDecision != domain.DecisionMaxIterations {
		t.Fatalf("finalDecision = %s, want %s", run.finalDecision, domain.DecisionMaxIterations)
	}
	if last := run.history[len(run.history)-1]; last.Decision != domain.DecisionMaxIterations {
		t.Fatalf("last history decision = %s, want %s", last.Decision, domain.DecisionMaxIterations)
	}
}

func TestAgentReranksOversizedCandidateSet(t *testing.T) {
	many := make([]domain.ScoredCandidate, 0, 12)
	for i := 0; i < 12; i++ {
		many = append(many, candidate("normativa.pdf", i, 0.9-float64(i)*0.01, 0))
	}
	store := &chunkStoreFake{semanticResults: [][]domain.ScoredCandidate{many}}
	agent := newTestAgent(store, &embedderFake{}, &chatModelFake{}, agentTestTunables())

	run, err := agent.run(context.Background(), 1, "alçada reguladora clau 20a1", []float32{0.1}, 3, weightProfile{semantic: 1, keyword: 0}, true, false)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if run.finalDecision != domain.DecisionAccept {
		t.Fatalf("finalDecision = %s, want %s", run.finalDecision, domain.DecisionAccept)
	}
	if len(run.best.candidates) != 3 {
		t.Fatalf("expected candidate set cut to 3 after rerank, got %d", len(run.best.candidates))
	}
	for i, c := range run.best.candidates {
		if c.ChunkIndex != i {
			t.Fatalf("rerank dropped a top candidate: position %d holds chunk %d", i, c.ChunkIndex)
		}
	}
}

func TestAgentRewriteFailureRecordsTerminalDecision(t *testing.T) {
	store := &chunkStoreFake{}
	chat := &chatModelFake{err: errors.New("chat backend down")}
	agent := newTestAgent(store, &embedderFake{}, chat, agentTestTunables())

	run, err := agent.run(context.Background(), 1, "pregunta sense resultats", []float32{0.1}, 5, weightProfile{semantic: 1, keyword: 0}, true, false)
	if err != nil {
		t.Fatalf("rewrite failure must end the loop, not fail it: %v", err)
	}
	if run.finalDecision != domain.DecisionMaxIterations {
		t.Fatalf("finalDecision = %s, want %s", run.finalDecision, domain.DecisionMaxIterations)
	}
	if len(run.history) != 1 || run.history[0].Decision != domain.DecisionMaxIterations {
		t.Fatalf("history must match the terminal state, got %+v", run.history)
	}
	if run.queriesRewritten != 0 {
		t.Fatalf("queriesRewritten = %d, want 0", run.queriesRewritten)
	}
}

func TestAgentTechnicalFailureSurfacesWithoutRewrite(t *testing.T) {
	store := &chunkStoreFake{semanticErrs: []error{errors.New("connection reset")}}
	chat := &chatModelFake{}
	agent := newTestAgent(store, &embedderFake{}, chat, agentTestTunables())

	_, err := agent.run(context.Background(), 1, "alçada clau 20a1", []float32{0.1}, 5, weightProfile{semantic: 1, keyword: 0}, true, false)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if chat.calls != 0 {
		t.Fatalf("technical failure must not trigger a rewrite, chat called %d times", chat.calls)
	}
}

func TestAgentDeadlineBecomesTimeout(t *testing.T) {
	store := &chunkStoreFake{semanticErrs: []error{context.DeadlineExceeded}}
	agent := newTestAgent(store, &embedderFake{}, &chatModelFake{}, agentTestTunables())

	_, err := agent.run(context.Background(), 1, "alçada clau 20a1", []float32{0.1}, 5, weightProfile{semantic: 1, keyword: 0}, true, false)
	if !domain.IsKind(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestDecideRuleOrder(t *testing.T) {
	agent := newTestAgent(&chunkStoreFake{}, &embedderFake{}, &chatModelFake{}, agentTestTunables())

	cases := []struct {
		name       string
		result     iterationResult
		iteration  int
		decision   domain.Decision
		wantReason string
	}{
		{"empty retryable", iterationResult{}, 1, domain.DecisionRewriteQuery, failureNoSources},
		{"empty final", iterationResult{}, 3, domain.DecisionMaxIterations, failureNoSources},
		{"low relevance", iterationResult{candidates: goodCandidates(3), relevance: 0.4}, 1, domain.DecisionRewriteQuery, failureLowRelevance},
		{"too few sources", iterationResult{candidates: goodCandidates(1), relevance: 0.8}, 2, domain.DecisionRewriteQuery, failureTooFewSources},
		{"too few sources final", iterationResult{candidates: goodCandidates(1), relevance: 0.8}, 3, domain.DecisionMaxIterations, failureTooFewSources},
		{"accept", iterationResult{candidates: goodCandidates(2), relevance: 0.7}, 1, domain.DecisionAccept, ""},
	}
	for _, tc := range cases {
		decision, reason := agent.decide(tc.result, tc.iteration)
		if decision != tc.decision || reason != tc.wantReason {
			t.Fatalf("%s: decide() = (%s, %q), want (%s, %q)", tc.name, decision, reason, tc.decision, tc.wantReason)
		}
	}
}

func TestBetterIterationKeepsBestSeen(t *testing.T) {
	best := iterationResult{}
	for _, r := range []iterationResult{
		{queryText: "q1", relevance: 0.5, candidates: goodCandidates(2)},
		{queryText: "q2", relevance: 0.8, candidates: goodCandidates(2)},
		{queryText: "q3", relevance: 0.6, candidates: goodCandidates(5)},
	} {
		best = betterIteration(best, r)
	}
	if best.queryText != "q2" || best.relevance != 0.8 {
		t.Fatalf("best-seen reduction picked %q (%v), want q2 (0.8)", best.queryText, best.relevance)
	}
}

func TestBetterIterationTiesBrokenByMoreSources(t *testing.T) {
	best := betterIteration(
		iterationResult{queryText: "q1", relevance: 0.7, candidates: goodCandidates(2)},
		iterationResult{queryText: "q2", relevance: 0.7, candidates: goodCandidates(4)},
	)
	if best.queryText != "q2" {
		t.Fatalf("tie should prefer more sources, got %q", best.queryText)
	}
}

func TestGradeCandidates(t *testing.T) {
	if got := gradeCandidates("anything", nil); got != 0 {
		t.Fatalf("empty result set graded %v, want 0", got)
	}

	// All query tokens present in the chunk text, similarity 0.85, 3 sources:
	// 0.40*1.0 + 0.40*0.85 + 0.20*(3/5) = 0.86.
	got := gradeCandidates("alçada reguladora clau 20a1", goodCandidates(3))
	if got < 0.859 || got > 0.861 {
		t.Fatalf("gradeCandidates() = %v, want 0.86", got)
	}

	// Disjoint vocabulary keeps only the semantic and count components.
	got = gradeCandidates("piscines desbordants municipals", goodCandidates(3))
	if got < 0.459 || got > 0.461 {
		t.Fatalf("gradeCandidates() with no keyword overlap = %v, want 0.46", got)
	}
}

func TestGradeCandidatesCappedAtOne(t *testing.T) {
	many := make([]domain.ScoredCandidate, 0, 8)
	for i := 0; i < 8; i++ {
		c := candidate("normativa.pdf", i, 1.4, 0)
		many = append(many, c)
	}
	if got := gradeCandidates("alçada clau 20a1", many); got != 1.0 {
		t.Fatalf("gradeCandidates() = %v, want cap at 1.0", got)
	}
}

func TestTokenizeQueryDropsShortTokensWithoutDigits(t *testing.T) {
	tokens := tokenizeQuery("què és la clau 20a1 de PB?")
	if _, ok := tokens["la"]; ok {
		t.Fatalf("short stopword survived tokenization")
	}
	if _, ok := tokens["20a1"]; !ok {
		t.Fatalf("zoning code dropped from tokens: %v", tokens)
	}
	if _, ok := tokens["clau"]; !ok {
		t.Fatalf("domain term dropped from tokens: %v", tokens)
	}
}
