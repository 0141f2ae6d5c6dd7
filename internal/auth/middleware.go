package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/conformapro/conformapro/internal/access"
	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/internal/view"
)

type stateContextKey struct{}

// ContextWithState stores the authentication state in ctx.
func ContextWithState(ctx context.Context, st State) context.Context {
	return context.WithValue(ctx, stateContextKey{}, st)
}

// StateFromContext returns the authentication state, signed out by default.
func StateFromContext(ctx context.Context) State {
	st, _ := ctx.Value(stateContextKey{}).(State)
	return st
}

// Middleware attaches the authentication state and the derived user type to
// every request. Bearer tokens take precedence over the session cookie.
type Middleware struct {
	Service   *Service
	Partition access.Partition
	Logger    *slog.Logger
}

// Handler implements the chi middleware signature.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var (
			st  State
			err error
		)
		if token, ok := BearerToken(r); ok {
			st, err = m.Service.Authenticate(ctx, token)
			if errors.Is(err, ErrInvalidToken) {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Token de acesso inválido ou expirado")
				return
			}
		} else if sess := shared.SessionFromContext(ctx); sess != nil {
			st, err = m.Service.State(ctx, sess.ID)
		}
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("load auth state", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "")
			return
		}

		ut := access.Resolve(st, m.Partition)
		ctx = ContextWithState(ctx, st)
		ctx = access.ContextWithUserType(ctx, ut)
		if st.Principal != nil {
			ctx = view.ContextWithViewer(ctx, view.Viewer{Email: st.Principal.Email, UserType: ut.String()})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
