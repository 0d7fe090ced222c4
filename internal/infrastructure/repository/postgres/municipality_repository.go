package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/civiclens/planrag/internal/core/domain"
)

type MunicipalityRepository struct {
	db *sql.DB
}

func NewMunicipalityRepository(db *sql.DB) *MunicipalityRepository {
	return &MunicipalityRepository{db: db}
}

func (r *MunicipalityRepository) Get(ctx context.Context, id int) (*domain.Municipality, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, corpus_language
FROM municipalities
WHERE id = $1
`, id)

	var m domain.Municipality
	if err := row.Scan(&m.ID, &m.Name, &m.CorpusLanguage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrMunicipalityNotFound, "get municipality", fmt.Errorf("id %d", id))
		}
		return nil, fmt.Errorf("scan municipality: %w", err)
	}
	return &m, nil
}
