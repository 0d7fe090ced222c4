package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/civiclens/planrag/internal/core/domain"
)

type municipalityStoreFake struct {
	municipality *domain.Municipality
	err          error
}

func (f *municipalityStoreFake) Get(context.Context, int) (*domain.Municipality, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.municipality == nil {
		return &domain.Municipality{ID: 1, Name: "Testville", CorpusLanguage: "ca"}, nil
	}
	return f.municipality, nil
}

type embedderFake struct {
	calls []string
	err   error
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// chunkStoreFake returns scripted results per call, in order. A nil entry in
// the error slices means success for that call.
type chunkStoreFake struct {
	semanticResults [][]domain.ScoredCandidate
	keywordResults  [][]domain.ScoredCandidate
	semanticErrs    []error
	keywordErrs     []error

	semanticCalls  int
	keywordCalls   int
	semanticLimits []int
	keywordQueries []string
}

func (f *chunkStoreFake) SearchByVector(_ context.Context, _ int, _ []float32, limit int) ([]domain.ScoredCandidate, error) {
	call := f.semanticCalls
	f.semanticCalls++
	f.semanticLimits = append(f.semanticLimits, limit)
	if call < len(f.semanticErrs) && f.semanticErrs[call] != nil {
		return nil, f.semanticErrs[call]
	}
	if call < len(f.semanticResults) {
		return f.semanticResults[call], nil
	}
	return nil, nil
}

func (f *chunkStoreFake) SearchByText(_ context.Context, _ int, query string, _ int) ([]domain.ScoredCandidate, error) {
	call := f.keywordCalls
	f.keywordCalls++
	f.keywordQueries = append(f.keywordQueries, query)
	if call < len(f.keywordErrs) && f.keywordErrs[call] != nil {
		return nil, f.keywordErrs[call]
	}
	if call < len(f.keywordResults) {
		return f.keywordResults[call], nil
	}
	return nil, nil
}

type chatModelFake struct {
	mu        sync.Mutex
	responses []string
	calls     int
	systems   []string
	users     []string
	err       error
}

func (f *chatModelFake) Complete(_ context.Context, system, user string) (domain.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	call := f.calls
	f.calls++
	if f.err != nil {
		return domain.Completion{}, f.err
	}
	if call < len(f.responses) {
		return domain.Completion{Text: f.responses[call], TokensUsed: 10}, nil
	}
	return domain.Completion{Text: fmt.Sprintf("rewrite %d", call), TokensUsed: 10}, nil
}

type generatorFake struct {
	lastQuestion     string
	lastChunks       []domain.ScoredCandidate
	lastMunicipality string
	err              error
}

func (f *generatorFake) GenerateAnswer(_ context.Context, question string, chunks []domain.ScoredCandidate, municipalityName string) (domain.GeneratedAnswer, error) {
	f.lastQuestion = question
	f.lastChunks = chunks
	f.lastMunicipality = municipalityName
	if f.err != nil {
		return domain.GeneratedAnswer{}, f.err
	}
	return domain.GeneratedAnswer{Text: "grounded answer [1]", TokensUsed: 42}, nil
}

func candidate(url string, index int, similarity, rank float64) domain.ScoredCandidate {
	return domain.ScoredCandidate{
		Chunk: domain.Chunk{
			DocumentTitle:  "POUM " + url,
			DocumentURL:    url,
			ChunkIndex:     index,
			Text:           fmt.Sprintf("ordinance text for %s#%d alçada reguladora aparcament clau 20a1", url, index),
			MunicipalityID: 1,
		},
		SemanticSimilarity: similarity,
		KeywordRank:        rank,
	}
}
