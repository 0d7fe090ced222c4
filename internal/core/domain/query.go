package domain

type QueryType string

const (
	QuerySimple      QueryType = "simple"
	QueryComplex     QueryType = "complex"
	QueryCodeLookup  QueryType = "code_lookup"
	QueryComparative QueryType = "comparative"
)

type QueryClassification struct {
	Type          QueryType `json:"query_type"`
	SuggestedTopK int       `json:"suggested_top_k"`
}

type TranslationResult struct {
	TranslatedQuery string `json:"translated_query"`
	SourceLanguage  string `json:"source_language"`
	TargetLanguage  string `json:"target_language"`
	WasTranslated   bool   `json:"was_translated"`
}

type TranslateOptions struct {
	Force   bool `json:"force"`
	Verbose bool `json:"verbose"`
}

type TranslatedQuestion struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
}

type Decision string

const (
	DecisionAccept        Decision = "accept"
	DecisionRewriteQuery  Decision = "rewrite_query"
	DecisionMaxIterations Decision = "max_iterations"
)

// IterationRecord captures one pass of the agentic retrieval loop.
type IterationRecord struct {
	Iteration      int      `json:"iteration_index"`
	QueryText      string   `json:"query_text"`
	SourcesFound   int      `json:"sources_found"`
	RelevanceScore float64  `json:"relevance_score"`
	AvgSimilarity  float64  `json:"avg_similarity"`
	Decision       Decision `json:"decision"`
}

type ResponseMetadata struct {
	TopK             int       `json:"top_k"`
	AvgSimilarity    float64   `json:"avg_similarity"`
	SearchMethod     string    `json:"search_method"`
	QueryClass       QueryType `json:"query_class"`
	IterationsUsed   int       `json:"iterations_used"`
	QueriesRewritten int       `json:"queries_rewritten"`
	WasTranslated    bool      `json:"was_translated"`
	TokensUsed       int       `json:"tokens_used"`
}

// RAGResponse is the final answer plus its provenance. It is immutable once
// assembled; the deliberate "insufficient information" case is a normal
// response with empty Sources, not an error.
type RAGResponse struct {
	Answer   string            `json:"answer"`
	Sources  []ScoredCandidate `json:"sources"`
	Metadata ResponseMetadata  `json:"metadata"`
}

type AskOptions struct {
	TopK              int  `json:"top_k,omitempty"`
	Verbose           bool `json:"verbose,omitempty"`
	ForceSemanticOnly bool `json:"force_semantic_only,omitempty"`
}

// GeneratedAnswer is the raw output of the answer generator backend.
type GeneratedAnswer struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

// Completion is a single chat-completion result.
type Completion struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

// Tunables is the immutable runtime configuration of the pipeline, exposed
// for observability. SemanticWeight+KeywordWeight and the code-profile pair
// each sum to 1.0.
type Tunables struct {
	SemanticWeight      float64 `json:"semantic_weight"`
	KeywordWeight       float64 `json:"keyword_weight"`
	CodeSemanticWeight  float64 `json:"code_semantic_weight"`
	CodeKeywordWeight   float64 `json:"code_keyword_weight"`
	CandidateMultiplier int     `json:"candidate_multiplier"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	RerankFloor         float64 `json:"rerank_floor"`
	RelevanceThreshold  float64 `json:"relevance_threshold"`
	MinSourcesRequired  int     `json:"min_sources_required"`
	MaxIterations       int     `json:"max_iterations"`
	MaxDistinctQueries  int     `json:"max_distinct_queries"`
	GenModel            string  `json:"gen_model"`
	EmbedModel          string  `json:"embed_model"`
	DefaultCorpusLang   string  `json:"default_corpus_language"`
}

// TranslationJob is one offline batch-translation request consumed from the
// queue by cmd/translator.
type TranslationJob struct {
	ID             string   `json:"id"`
	MunicipalityID int      `json:"municipality_id"`
	Questions      []string `json:"questions"`
}

type TranslationJobResult struct {
	JobID string               `json:"job_id"`
	Items []TranslatedQuestion `json:"items"`
}
