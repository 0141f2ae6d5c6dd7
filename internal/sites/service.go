package sites

import (
	"context"
	"strings"
)

// RepositoryPort defines data access methods for sites.
type RepositoryPort interface {
	ListForUser(ctx context.Context, userID string) ([]Site, error)
}

// Service handles site selection rules.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Accessible lists the sites userID may select.
func (s *Service) Accessible(ctx context.Context, userID string) ([]Site, error) {
	if userID == "" {
		return []Site{}, nil
	}
	return s.repo.ListForUser(ctx, userID)
}

// Authorize returns the site when userID may act within it.
func (s *Service) Authorize(ctx context.Context, userID, siteID string) (Site, error) {
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return Site{}, ErrSiteNotFound
	}
	accessible, err := s.Accessible(ctx, userID)
	if err != nil {
		return Site{}, err
	}
	for _, site := range accessible {
		if strings.EqualFold(site.ID, siteID) {
			return site, nil
		}
	}
	return Site{}, ErrSiteNotFound
}
