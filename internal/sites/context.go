package sites

import (
	"context"
	"net/http"
	"strings"

	"github.com/conformapro/conformapro/internal/shared"
)

const (
	// SessionKey stores the selected site id in the HTTP session.
	SessionKey = "site_id"
	// Header carries the site id for bearer-authenticated API callers.
	Header = "X-Site-ID"
)

type siteContextKey struct{}

// ContextWithSiteID stores the selected site id in ctx.
func ContextWithSiteID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, siteContextKey{}, id)
}

// IDFromContext returns the selected site id, empty when none.
func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(siteContextKey{}).(string)
	return id
}

// Middleware exposes the selected site to downstream handlers. The header
// wins over the session so API clients can address any of their sites.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(Header))
		if id == "" {
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				id = sess.Get(SessionKey)
			}
		}
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithSiteID(r.Context(), id)))
	})
}
