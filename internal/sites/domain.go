package sites

import "errors"

// ErrSiteNotFound indicates the site does not exist or is not reachable by
// the principal.
var ErrSiteNotFound = errors.New("sites: site not found")

// Site is an operational unit a client principal acts within.
type Site struct {
	ID   string
	Name string
}
