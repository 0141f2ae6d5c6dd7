package users

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns the profiles whose name or e-mail contains query,
// ignoring case. An empty query matches everyone.
func (s *Service) ListUsers(ctx context.Context, query string) ([]User, error) {
	all, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return all, nil
	}
	fold := cases.Fold()
	needle := fold.String(query)
	out := make([]User, 0, len(all))
	for _, u := range all {
		if strings.Contains(fold.String(u.Name), needle) || strings.Contains(fold.String(u.Email), needle) {
			out = append(out, u)
		}
	}
	return out, nil
}
