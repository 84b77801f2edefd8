package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLStore reads the category catalog maintained by the admin portal.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// ListAll returns every category ordered by (sort_order, name), the display order.
func (s *SQLStore) ListAll(ctx context.Context) ([]Node, error) {
	var nodes []Node
	err := s.db.SelectContext(ctx, &nodes, `
		SELECT id, parent_id, name, description, sort_order
		FROM categories
		ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("catalog list: %w", err)
	}
	return nodes, nil
}

// FindByID returns one category with its photos, or nil when absent.
func (s *SQLStore) FindByID(ctx context.Context, id string) (*ItemDetail, error) {
	var node Node
	err := s.db.GetContext(ctx, &node, `
		SELECT id, parent_id, name, description, sort_order
		FROM categories
		WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog find %s: %w", id, err)
	}

	var photos []string
	err = s.db.SelectContext(ctx, &photos, `
		SELECT file_path
		FROM category_photos
		WHERE category_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("catalog photos %s: %w", id, err)
	}
	return &ItemDetail{Node: node, Photos: photos}, nil
}

// Search performs a case-insensitive substring match over category names.
func (s *SQLStore) Search(ctx context.Context, query string, limit int) ([]Node, error) {
	if limit <= 0 {
		limit = 50
	}
	var nodes []Node
	err := s.db.SelectContext(ctx, &nodes, `
		SELECT id, parent_id, name, description, sort_order
		FROM categories
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY sort_order, name
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	return nodes, nil
}
