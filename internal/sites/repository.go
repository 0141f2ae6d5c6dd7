package sites

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed site lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const listForUserSQL = `
SELECT DISTINCT s.id::text, s.name
FROM sites s
JOIN user_permissions up ON up.site_id = s.id
WHERE up.user_id = $1
ORDER BY s.name`

// ListForUser returns the sites on which userID holds at least one grant.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Site, error) {
	rows, err := r.pool.Query(ctx, listForUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("sites: list for user: %w", err)
	}
	sites, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Site])
	if err != nil {
		return nil, fmt.Errorf("sites: scan: %w", err)
	}
	return sites, nil
}
