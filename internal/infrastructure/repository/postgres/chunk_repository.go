package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/civiclens/planrag/internal/core/domain"
)

// ChunkRepository serves both retrieval sides over one table: pgvector
// cosine search on the embedding column and full-text search on the
// generated tsvector column.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/translator startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	// The corpus mixes Catalan and Spanish; the simple text-search
	// configuration avoids wrong-language stemming of zoning codes.
	const query = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS municipalities (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	corpus_language TEXT NOT NULL DEFAULT 'ca'
);

CREATE TABLE IF NOT EXISTS chunks (
	id BIGSERIAL PRIMARY KEY,
	municipality_id INTEGER NOT NULL REFERENCES municipalities(id),
	document_title TEXT NOT NULL,
	document_url TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	embedding vector(768),
	content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED,
	UNIQUE (document_url, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_municipality ON chunks(municipality_id);
CREATE INDEX IF NOT EXISTS idx_chunks_content_tsv ON chunks USING GIN (content_tsv);
CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// SearchByVector returns the closest chunks by cosine distance, scored as
// similarity in [0,1].
func (r *ChunkRepository) SearchByVector(
	ctx context.Context,
	municipalityID int,
	queryVector []float32,
	limit int,
) ([]domain.ScoredCandidate, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT document_title, document_url, chunk_index, content, municipality_id,
       1 - (embedding <=> $2::vector) AS similarity
FROM chunks
WHERE municipality_id = $1
ORDER BY embedding <=> $2::vector
LIMIT $3
`, municipalityID, vectorLiteral(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows, scoreSemantic)
}

// SearchByText runs websearch-style full-text matching. The rank uses the
// rank/(rank+1) normalization so it stays in [0,1) and is comparable with
// similarity scores.
func (r *ChunkRepository) SearchByText(
	ctx context.Context,
	municipalityID int,
	query string,
	limit int,
) ([]domain.ScoredCandidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT document_title, document_url, chunk_index, content, municipality_id,
       ts_rank_cd(content_tsv, q, 32) AS rank
FROM chunks, websearch_to_tsquery('simple', $2) q
WHERE municipality_id = $1 AND content_tsv @@ q
ORDER BY rank DESC
LIMIT $3
`, municipalityID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows, scoreKeyword)
}

type scoreSide int

const (
	scoreSemantic scoreSide = iota
	scoreKeyword
)

func scanCandidates(rows *sql.Rows, side scoreSide) ([]domain.ScoredCandidate, error) {
	var out []domain.ScoredCandidate
	for rows.Next() {
		var c domain.ScoredCandidate
		var score float64
		err := rows.Scan(
			&c.DocumentTitle, &c.DocumentURL, &c.ChunkIndex, &c.Text, &c.MunicipalityID,
			&score,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if side == scoreSemantic {
			c.SemanticSimilarity = score
		} else {
			c.KeywordRank = score
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

// vectorLiteral renders the pgvector input syntax, e.g. "[0.1,0.2,0.3]".
func vectorLiteral(vector []float32) string {
	var b strings.Builder
	b.Grow(len(vector)*10 + 2)
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
