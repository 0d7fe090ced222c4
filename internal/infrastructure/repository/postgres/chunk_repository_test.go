package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/civiclens/planrag/internal/core/domain"
)

func newChunkRepoWithMock(t *testing.T) (*ChunkRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ChunkRepository{db: db}, mock, func() { _ = db.Close() }
}

func candidateColumns() []string {
	return []string{"document_title", "document_url", "chunk_index", "content", "municipality_id", "score"}
}

func TestSearchByVectorScansSimilarity(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT document_title, document_url, chunk_index").
		WithArgs(3, "[0.1,0.25,-0.5]", 20).
		WillReturnRows(sqlmock.NewRows(candidateColumns()).
			AddRow("Normes urbanístiques", "poum/normes.pdf", 4, "Alçada reguladora màxima 9,15 m", 3, 0.87).
			AddRow("Ordenances", "poum/ordenances.pdf", 1, "Dotació mínima d'aparcament", 3, 0.71))

	got, err := repo.SearchByVector(context.Background(), 3, []float32{0.1, 0.25, -0.5}, 20)
	if err != nil {
		t.Fatalf("SearchByVector() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	first := got[0]
	if first.DocumentURL != "poum/normes.pdf" || first.ChunkIndex != 4 || first.MunicipalityID != 3 {
		t.Fatalf("unexpected candidate: %+v", first)
	}
	if first.SemanticSimilarity != 0.87 || first.KeywordRank != 0 {
		t.Fatalf("similarity must land on the semantic side: %+v", first)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchByTextScansRank(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT document_title, document_url, chunk_index").
		WithArgs(3, "clau 20a1", 20).
		WillReturnRows(sqlmock.NewRows(candidateColumns()).
			AddRow("Normes urbanístiques", "poum/normes.pdf", 4, "Zona clau 20a1", 3, 0.42))

	got, err := repo.SearchByText(context.Background(), 3, "clau 20a1", 20)
	if err != nil {
		t.Fatalf("SearchByText() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].KeywordRank != 0.42 || got[0].SemanticSimilarity != 0 {
		t.Fatalf("rank must land on the keyword side: %+v", got[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchByTextSkipsEmptyQuery(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	got, err := repo.SearchByText(context.Background(), 3, "   ", 20)
	if err != nil {
		t.Fatalf("SearchByText() error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected no results for blank query, got %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVectorLiteral(t *testing.T) {
	got := vectorLiteral([]float32{0.1, -0.25, 2})
	if got != "[0.1,-0.25,2]" {
		t.Fatalf("vectorLiteral() = %q", got)
	}
	if empty := vectorLiteral(nil); empty != "[]" {
		t.Fatalf("vectorLiteral(nil) = %q", empty)
	}
}

func newMunicipalityRepoWithMock(t *testing.T) (*MunicipalityRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &MunicipalityRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestMunicipalityGet(t *testing.T) {
	repo, mock, done := newMunicipalityRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, name, corpus_language").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "corpus_language"}).
			AddRow(3, "Sant Cugat del Vallès", "ca"))

	got, err := repo.Get(context.Background(), 3)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Sant Cugat del Vallès" || got.CorpusLanguage != "ca" {
		t.Fatalf("unexpected municipality: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMunicipalityGetReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newMunicipalityRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, name, corpus_language").
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 99)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrMunicipalityNotFound) {
		t.Fatalf("expected ErrMunicipalityNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(int64(2026083001)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
