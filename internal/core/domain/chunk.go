package domain

import "fmt"

// Chunk is an immutable fragment of a planning document. Chunks are produced
// by the ingestion pipeline; this core only reads them.
type Chunk struct {
	DocumentTitle  string `json:"document_title"`
	DocumentURL    string `json:"document_url"`
	ChunkIndex     int    `json:"chunk_index"`
	Text           string `json:"text"`
	MunicipalityID int    `json:"municipality_id"`
}

// Key identifies a chunk for deduplication purposes.
func (c Chunk) Key() string {
	return fmt.Sprintf("%s:%d", c.DocumentURL, c.ChunkIndex)
}

// ScoredCandidate is a chunk with its retrieval scores for one call.
// SemanticSimilarity is in [0,1]; KeywordRank is the non-negative score of
// the full-text engine and is not bounded above.
type ScoredCandidate struct {
	Chunk
	SemanticSimilarity float64 `json:"semantic_similarity"`
	KeywordRank        float64 `json:"keyword_rank"`
	CombinedScore      float64 `json:"combined_score"`
}

type Municipality struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	CorpusLanguage string `json:"corpus_language"`
}
