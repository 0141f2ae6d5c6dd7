package permissions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/conformapro/conformapro/internal/access"
	"github.com/conformapro/conformapro/internal/auth"
	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/sites"
	"github.com/conformapro/conformapro/internal/view"
)

const (
	deniedMessage      = "Você não tem permissão para acessar este recurso."
	unavailableMessage = "Não foi possível carregar suas permissões. Tente novamente."
)

type resolverContextKey struct{}

// ContextWithResolver stores r in ctx.
func ContextWithResolver(ctx context.Context, r *Resolver) context.Context {
	return context.WithValue(ctx, resolverContextKey{}, r)
}

// FromContext returns the request resolver. A missing resolver is nil, and a
// nil resolver denies everything.
func FromContext(ctx context.Context) *Resolver {
	r, _ := ctx.Value(resolverContextKey{}).(*Resolver)
	return r
}

// Middleware resolves grants for the current principal and site.
type Middleware struct {
	Source   Source
	Renderer view.Renderer
	Logger   *slog.Logger
}

// KeyFromContext builds the resolver key of the current request.
func KeyFromContext(ctx context.Context) Key {
	key := Key{
		UserType: access.UserTypeFromContext(ctx),
		SiteID:   sites.IDFromContext(ctx),
	}
	if st := auth.StateFromContext(ctx); st.Principal != nil {
		key.PrincipalID = st.Principal.ID
	}
	return key
}

// Load attaches a synced resolver to the request. Fetch errors stay on the
// resolver for handlers to surface.
func (m Middleware) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := NewResolver(m.Source)
		if err := res.Sync(r.Context(), KeyFromContext(r.Context())); err != nil && !errors.Is(err, ErrSuperseded) {
			m.logger().Error("load permissions", slog.Any("error", err))
		}
		next.ServeHTTP(w, r.WithContext(ContextWithResolver(r.Context(), res)))
	})
}

// Require lets the request through only when the resolver allows action on
// module.
func (m Middleware) Require(module, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := FromContext(r.Context())
			if res.Err() != nil {
				m.fail(w, r, http.StatusServiceUnavailable, unavailableMessage)
				return
			}
			if !res.HasPermission(module, action) {
				m.logger().Info("permission denied",
					slog.String("module", module),
					slog.String("action", action),
					slog.String("path", r.URL.Path),
				)
				m.fail(w, r, http.StatusForbidden, deniedMessage)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	if httpx.WantsJSON(r) {
		httpx.Problem(w, status, http.StatusText(status), message)
		return
	}
	m.Renderer.Error(w, r, status, message)
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
