// Package permissions resolves the site-scoped module/action grants of a
// client principal.
package permissions

import (
	"errors"
	"strings"

	"github.com/conformapro/conformapro/internal/access"
)

// ErrSuperseded is returned by a Sync whose key was replaced by a newer Sync
// before its fetch completed. Its result was discarded.
var ErrSuperseded = errors.New("permissions: fetch superseded by a newer key")

// Decision is the stored outcome of a grant.
type Decision string

// Known decisions. Anything else is treated as a denial.
const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// ParseDecision normalises a stored decision value.
func ParseDecision(raw string) Decision {
	if strings.EqualFold(strings.TrimSpace(raw), string(Allow)) {
		return Allow
	}
	return Deny
}

// Grant is one authorization decision for a (module, action) pair.
type Grant struct {
	Module   string   `json:"module"`
	Action   string   `json:"action"`
	Decision Decision `json:"decision"`
}

// Key identifies the snapshot a resolver should hold.
type Key struct {
	UserType    access.UserType
	PrincipalID string
	SiteID      string
}

// fetchable reports whether key addresses the site-scoped grant path. Staff
// principals do not use it.
func (k Key) fetchable() bool {
	if k.PrincipalID == "" || k.SiteID == "" {
		return false
	}
	c, ok := k.UserType.(access.Client)
	return ok && c.Authenticated
}

func (k Key) same(other Key) bool {
	return k.PrincipalID == other.PrincipalID && k.SiteID == other.SiteID
}
