package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conformapro/conformapro/internal/access"
)

// Store keeps the sign-in state of each HTTP session in Redis. Sign-in
// creates the record, role resolution completes it and sign-out removes it.
type Store struct {
	client          *redis.Client
	ttl             time.Duration
	resolveDeadline time.Duration
}

// DefaultResolveDeadline is how long a session may wait for its roles before
// the sign-in is abandoned.
const DefaultResolveDeadline = 2 * time.Minute

type storedState struct {
	UserID     string   `json:"user_id"`
	Email      string   `json:"email"`
	ClaimRoles []string `json:"claim_roles,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	Resolving  bool     `json:"resolving"`
}

// NewStore constructs a Store. ttl should match the session lifetime.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, resolveDeadline: DefaultResolveDeadline}
}

// SetResolveDeadline changes the wait allowed for role resolution. Zero
// disables the deadline.
func (s *Store) SetResolveDeadline(d time.Duration) {
	s.resolveDeadline = d
}

// Begin records a freshly signed-in principal whose roles are not known yet.
func (s *Store) Begin(ctx context.Context, sessionID string, p Principal, claimRoles []string) error {
	data, err := json.Marshal(storedState{
		UserID:     p.ID,
		Email:      p.Email,
		ClaimRoles: claimRoles,
		Resolving:  true,
	})
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sessionID), data, s.ttl)
		if s.resolveDeadline > 0 {
			pipe.Set(ctx, s.pendingKey(sessionID), p.ID, s.resolveDeadline)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("auth: begin state: %w", err)
	}
	return nil
}

// Complete stores the resolved role names and clears the resolving flag.
// roleNames is computed by fn from the claim roles captured at sign-in. It
// returns ErrStateNotFound when the session signed out in the meantime.
func (s *Store) Complete(ctx context.Context, sessionID, userID string, fn func(claimRoles []string) ([]string, error)) error {
	key := s.key(sessionID)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrStateNotFound
			}
			return err
		}
		var st storedState
		if err := json.Unmarshal(raw, &st); err != nil {
			return err
		}
		if st.UserID != userID {
			// A different principal signed in on this session.
			return ErrStateNotFound
		}
		roles, err := fn(st.ClaimRoles)
		if err != nil {
			return err
		}
		st.Roles = roles
		st.Resolving = false
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			pipe.Del(ctx, s.pendingKey(sessionID))
			return nil
		})
		return err
	}
	if err := s.client.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return err
		}
		return fmt.Errorf("auth: complete state: %w", err)
	}
	return nil
}

// Abandon removes a sign-in whose roles could not be resolved, so the
// session falls back to signed out. Resolved or foreign states are kept and
// reported as ErrStateNotFound.
func (s *Store) Abandon(ctx context.Context, sessionID, userID string) error {
	key := s.key(sessionID)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrStateNotFound
			}
			return err
		}
		var st storedState
		if err := json.Unmarshal(raw, &st); err != nil {
			return err
		}
		if st.UserID != userID || !st.Resolving {
			return ErrStateNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, s.pendingKey(sessionID))
			return nil
		})
		return err
	}
	if err := s.client.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return err
		}
		return fmt.Errorf("auth: abandon state: %w", err)
	}
	return nil
}

// Load returns the state for a session; a missing record is a signed-out
// state, not an error.
func (s *Store) Load(ctx context.Context, sessionID string) (State, []string, error) {
	if sessionID == "" {
		return State{}, nil, nil
	}
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, nil, nil
		}
		return State{}, nil, fmt.Errorf("auth: load state: %w", err)
	}
	var st storedState
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, nil, fmt.Errorf("auth: decode state: %w", err)
	}
	if st.Resolving && s.resolveDeadline > 0 {
		expired, err := s.resolveExpired(ctx, sessionID)
		if err != nil {
			return State{}, nil, err
		}
		if expired {
			if err := s.Abandon(ctx, sessionID, st.UserID); err != nil && !errors.Is(err, ErrStateNotFound) {
				return State{}, nil, err
			}
			return State{}, nil, nil
		}
	}
	roles, unknown := access.ParseRoleSet(st.Roles)
	return State{
		Principal: &Principal{ID: st.UserID, Email: st.Email, Roles: roles},
		Pending:   st.Resolving,
	}, unknown, nil
}

// Clear removes the state of a session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(sessionID), s.pendingKey(sessionID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("auth: clear state: %w", err)
	}
	return nil
}

// resolveExpired reports whether the resolution marker of a resolving
// session has lapsed.
func (s *Store) resolveExpired(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.pendingKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("auth: load state: %w", err)
	}
	return n == 0, nil
}

func (s *Store) key(sessionID string) string {
	return "auth:state:" + sessionID
}

func (s *Store) pendingKey(sessionID string) string {
	return "auth:resolving:" + sessionID
}
