package auth

import (
	"errors"

	"github.com/conformapro/conformapro/internal/access"
)

var (
	// ErrInvalidCredentials indicates the backend rejected email/password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken indicates an access token failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrStateNotFound indicates no sign-in state exists for a session.
	ErrStateNotFound = errors.New("auth: state not found")
)

// Principal is the authenticated actor of a session.
type Principal struct {
	ID    string
	Email string
	Roles access.RoleSet
}

// HasRole reports whether the principal holds the named role.
func (p *Principal) HasRole(name string) bool {
	if p == nil {
		return false
	}
	role, ok := access.ParseRole(name)
	return ok && p.Roles.Has(role)
}

// State is the authentication collaborator's current view of a session.
// A nil Principal with Pending unset is a signed-out visitor.
type State struct {
	Principal *Principal
	Pending   bool
}

// Resolving reports whether role resolution is still in flight.
func (s State) Resolving() bool {
	return s.Pending
}

// Authenticated reports whether a principal is signed in.
func (s State) Authenticated() bool {
	return s.Principal != nil
}

// Roles returns the principal's resolved roles.
func (s State) Roles() access.RoleSet {
	if s.Principal == nil {
		return 0
	}
	return s.Principal.Roles
}

// HasRole reports whether the signed-in principal holds the named role.
func (s State) HasRole(name string) bool {
	return s.Principal.HasRole(name)
}

var _ access.AuthState = State{}
