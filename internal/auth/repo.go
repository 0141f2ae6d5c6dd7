package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoleRepository resolves the role names granted to a user.
type RoleRepository interface {
	UserRoles(ctx context.Context, userID string) ([]string, error)
}

// PGRepository implements RoleRepository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userRolesSQL = `
SELECT r.name
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1
ORDER BY r.name`

// UserRoles returns the role names assigned to userID.
func (r *PGRepository) UserRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, userRolesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("auth: query user roles: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("auth: scan user roles: %w", err)
	}
	return names, nil
}

var _ RoleRepository = (*PGRepository)(nil)
