package permissions

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/text/cases"
)

type grantKey struct {
	module string
	action string
}

// Resolver holds the grant snapshot of the current (principal, site) pair.
// Consumers read it; only Sync replaces it.
type Resolver struct {
	source Source

	mu         sync.RWMutex
	generation uint64
	key        Key
	grants     []Grant
	allowed    map[grantKey]struct{}
	loading    bool
	err        error
}

// NewResolver constructs a Resolver with an empty snapshot.
func NewResolver(source Source) *Resolver {
	return &Resolver{
		source:  source,
		grants:  []Grant{},
		allowed: map[grantKey]struct{}{},
	}
}

// Sync makes key the current pair and fetches its grants. Keys outside the
// client site-scoped path yield an empty snapshot without a fetch. A fetch
// that completes after a newer Sync started is discarded and reported as
// ErrSuperseded.
func (r *Resolver) Sync(ctx context.Context, key Key) error {
	r.mu.Lock()
	r.generation++
	gen := r.generation
	changed := !r.key.same(key)
	r.key = key
	if !key.fetchable() {
		r.apply([]Grant{})
		r.loading = false
		r.err = nil
		r.mu.Unlock()
		return nil
	}
	if changed {
		// Grants of the previous pair never answer for the new one.
		r.apply([]Grant{})
		r.err = nil
	}
	r.loading = true
	r.mu.Unlock()

	grants, err := r.source.Grants(ctx, key.PrincipalID, key.SiteID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return ErrSuperseded
	}
	r.loading = false
	if err != nil {
		r.err = err
		return fmt.Errorf("permissions: fetch grants: %w", err)
	}
	r.err = nil
	if grants == nil {
		grants = []Grant{}
	}
	r.apply(grants)
	return nil
}

// apply replaces the snapshot; callers hold mu.
func (r *Resolver) apply(grants []Grant) {
	fold := cases.Fold()
	allowed := make(map[grantKey]struct{}, len(grants))
	for _, g := range grants {
		if g.Decision != Allow {
			continue
		}
		allowed[grantKey{module: fold.String(g.Module), action: fold.String(g.Action)}] = struct{}{}
	}
	r.grants = grants
	r.allowed = allowed
}

// Permissions returns a copy of the current snapshot, never nil.
func (r *Resolver) Permissions() []Grant {
	if r == nil {
		return []Grant{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneGrants(r.grants)
}

// HasPermission reports whether the snapshot allows action on module. The
// match ignores case; absence of a grant is a denial.
func (r *Resolver) HasPermission(module, action string) bool {
	if r == nil {
		return false
	}
	fold := cases.Fold()
	k := grantKey{module: fold.String(module), action: fold.String(action)}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.allowed[k]
	return ok
}

// IsLoading reports whether a fetch for the current key is in flight.
func (r *Resolver) IsLoading() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Err returns the error of the last completed fetch for the current key.
func (r *Resolver) Err() error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}
