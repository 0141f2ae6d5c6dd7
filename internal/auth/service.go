package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/conformapro/conformapro/internal/access"
)

// IdentityProvider exchanges credentials with the hosted auth backend.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// RoleQueue hands role resolution to a background worker.
type RoleQueue interface {
	EnqueueResolveRoles(ctx context.Context, sessionID, userID string) error
}

// Service wraps the sign-in lifecycle.
type Service struct {
	provider IdentityProvider
	verifier TokenVerifier
	roles    RoleRepository
	store    *Store
	queue    RoleQueue
	logger   *slog.Logger
}

// NewService constructs a new Service. Roles are resolved inline until a
// queue is attached with UseQueue.
func NewService(provider IdentityProvider, verifier TokenVerifier, roles RoleRepository, store *Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		verifier: verifier,
		roles:    roles,
		store:    store,
		logger:   logger.With(slog.String("component", "auth")),
	}
}

// UseQueue makes SignIn defer role resolution to q.
func (s *Service) UseQueue(q RoleQueue) {
	s.queue = q
}

// SignIn authenticates the credentials and binds the principal to sessionID.
// The returned session carries the backend access token.
func (s *Service) SignIn(ctx context.Context, sessionID, email, password string) (*Session, error) {
	sess, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	id, err := s.verifier.Verify(ctx, sess.AccessToken)
	if err != nil {
		return nil, err
	}
	principal := Principal{ID: id.Subject, Email: id.Email}
	if principal.Email == "" {
		principal.Email = sess.User.Email
	}
	if err := s.store.Begin(ctx, sessionID, principal, id.Roles); err != nil {
		return nil, err
	}

	if s.queue != nil {
		err := s.queue.EnqueueResolveRoles(ctx, sessionID, principal.ID)
		if err == nil {
			return sess, nil
		}
		s.logger.Warn("enqueue role resolution, resolving inline", slog.Any("error", err))
	}
	if err := s.ResolveRoles(ctx, sessionID, principal.ID); err != nil {
		_ = s.store.Clear(ctx, sessionID)
		return nil, err
	}
	return sess, nil
}

// ResolveRoles loads the user's roles and completes the session state. A
// session that signed out in the meantime is left alone.
func (s *Service) ResolveRoles(ctx context.Context, sessionID, userID string) error {
	err := s.store.Complete(ctx, sessionID, userID, func(claimRoles []string) ([]string, error) {
		stored, err := s.roles.UserRoles(ctx, userID)
		if err != nil {
			return nil, err
		}
		return mergeRoleNames(claimRoles, stored), nil
	})
	if errors.Is(err, ErrStateNotFound) {
		s.logger.Info("role resolution skipped, session gone", slog.String("user_id", userID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth: resolve roles: %w", err)
	}
	return nil
}

// AbandonRoles gives up on a session whose roles could not be resolved. The
// session is signed out so the visitor leaves the waiting page for the login.
func (s *Service) AbandonRoles(ctx context.Context, sessionID, userID string) error {
	err := s.store.Abandon(ctx, sessionID, userID)
	if errors.Is(err, ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth: abandon roles: %w", err)
	}
	s.logger.Warn("role resolution abandoned", slog.String("user_id", userID))
	return nil
}

// SignOut drops the session state and revokes the backend token.
func (s *Service) SignOut(ctx context.Context, sessionID, accessToken string) error {
	if err := s.store.Clear(ctx, sessionID); err != nil {
		return err
	}
	if accessToken == "" {
		return nil
	}
	if err := s.provider.SignOut(ctx, accessToken); err != nil {
		s.logger.Warn("revoke backend session", slog.Any("error", err))
	}
	return nil
}

// State returns the current view of sessionID.
func (s *Service) State(ctx context.Context, sessionID string) (State, error) {
	st, unknown, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	s.logUnknown(unknown)
	return st, nil
}

// Authenticate resolves a bearer token into a fully resolved state.
func (s *Service) Authenticate(ctx context.Context, token string) (State, error) {
	id, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return State{}, err
	}
	stored, err := s.roles.UserRoles(ctx, id.Subject)
	if err != nil {
		return State{}, fmt.Errorf("auth: bearer roles: %w", err)
	}
	roles, unknown := access.ParseRoleSet(mergeRoleNames(id.Roles, stored))
	s.logUnknown(unknown)
	return State{Principal: &Principal{ID: id.Subject, Email: id.Email, Roles: roles}}, nil
}

func (s *Service) logUnknown(names []string) {
	if len(names) > 0 {
		s.logger.Warn("ignoring unknown roles", slog.Any("roles", names))
	}
}

func mergeRoleNames(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, name := range list {
			name = strings.TrimSpace(name)
			key := strings.ToLower(name)
			if name == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
