package permissions

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Source fetches the grants of one principal on one site.
type Source interface {
	Grants(ctx context.Context, principalID, siteID string) ([]Grant, error)
}

// Repository reads grants from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const grantsSQL = `
SELECT module, action, decision
FROM user_permissions
WHERE user_id = $1 AND site_id = $2
ORDER BY module, action`

// Grants returns the stored grants for (principalID, siteID).
func (r *Repository) Grants(ctx context.Context, principalID, siteID string) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, grantsSQL, principalID, siteID)
	if err != nil {
		return nil, fmt.Errorf("permissions: query grants: %w", err)
	}
	grants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Grant, error) {
		var (
			g        Grant
			decision string
		)
		if err := row.Scan(&g.Module, &g.Action, &decision); err != nil {
			return Grant{}, err
		}
		g.Decision = ParseDecision(decision)
		return g, nil
	})
	if err != nil {
		return nil, fmt.Errorf("permissions: scan grants: %w", err)
	}
	return grants, nil
}

var _ Source = (*Repository)(nil)
