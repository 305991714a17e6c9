package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkotenko/document-intake/internal/core/domain"
)

// ClassRepository persists document class definitions keyed by normalized
// class name. Field prompts are stored as an ordered JSONB array.
type ClassRepository struct {
	db *sql.DB
}

func NewClassRepository(db *sql.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) Get(ctx context.Context, name string) (*domain.DocumentClass, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT class_name, fields, created_at, updated_at
FROM class_prompts
WHERE class_name = $1
`, name)

	class, err := scanClass(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get class", fmt.Errorf("class %s", name))
		}
		return nil, domain.WrapError(domain.ErrPersistence, "get class", err)
	}
	return &class, nil
}

func (r *ClassRepository) List(ctx context.Context) ([]domain.DocumentClass, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT class_name, fields, created_at, updated_at
FROM class_prompts
ORDER BY class_name
`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "list classes", err)
	}
	defer rows.Close()

	out := make([]domain.DocumentClass, 0)
	for rows.Next() {
		class, err := scanClass(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "list classes", err)
		}
		out = append(out, class)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate classes", err)
	}
	return out, nil
}

func (r *ClassRepository) Upsert(ctx context.Context, class domain.DocumentClass) error {
	fieldsJSON, err := json.Marshal(class.Fields)
	if err != nil {
		return fmt.Errorf("marshal class fields: %w", err)
	}

	now := time.Now().UTC()
	createdAt := class.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := class.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO class_prompts (class_name, fields, created_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (class_name) DO UPDATE
SET fields = EXCLUDED.fields, updated_at = EXCLUDED.updated_at
`, class.Name, fieldsJSON, createdAt, updatedAt)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "upsert class", err)
	}
	return nil
}

func (r *ClassRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM class_prompts
WHERE class_name = $1
`, name)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "delete class", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "delete class rows affected", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "delete class", fmt.Errorf("class %s", name))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClass(row rowScanner) (domain.DocumentClass, error) {
	var class domain.DocumentClass
	var fieldsRaw []byte
	if err := row.Scan(&class.Name, &fieldsRaw, &class.CreatedAt, &class.UpdatedAt); err != nil {
		return domain.DocumentClass{}, err
	}
	if err := json.Unmarshal(fieldsRaw, &class.Fields); err != nil {
		return domain.DocumentClass{}, fmt.Errorf("unmarshal class fields: %w", err)
	}
	return class, nil
}
