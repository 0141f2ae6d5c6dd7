package access

import (
	"log/slog"
	"net/http"

	"github.com/conformapro/conformapro/internal/observability"
	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/internal/view"
)

// DeniedMessage is shown whenever a guard turns a principal away.
const DeniedMessage = "Acesso negado: você foi redirecionado para a sua área."

// loadingRetrySeconds is how often the waiting page polls for resolution.
const loadingRetrySeconds = "2"

// Middleware renders guard decisions over HTTP.
type Middleware struct {
	Templates *view.Engine
	CSRF      *shared.CSRFManager
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// RequireClient gates client-facing routes.
func (m Middleware) RequireClient() func(http.Handler) http.Handler {
	return m.Require(ClientGuard{})
}

// RequireStaff gates internal administration routes.
func (m Middleware) RequireStaff() func(http.Handler) http.Handler {
	return m.Require(StaffGuard{})
}

// Require wraps protected handlers with guard g. Signed-out visitors are sent
// to the login page before the guard is consulted.
func (m Middleware) Require(g Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ut := UserTypeFromContext(r.Context())
			if c, ok := ut.(Client); ok && !c.Authenticated {
				m.Metrics.GuardDecision(g.Name(), "anonymous")
				m.toLogin(w, r)
				return
			}

			decision := g.Decide(ut)
			m.Metrics.GuardDecision(g.Name(), decision.String())
			switch d := decision.(type) {
			case Allow:
				next.ServeHTTP(w, r)
			case Wait:
				m.renderWaiting(w, r)
			case Deny:
				if m.Logger != nil {
					m.Logger.Info("access denied",
						slog.String("guard", g.Name()),
						slog.String("user_type", ut.String()),
						slog.String("path", r.URL.Path),
						slog.String("redirect", d.Redirect),
					)
				}
				m.renderDenied(w, r, d.Redirect)
			}
		})
	}
}

// Landing sends each user type to its own section: visitors to the login
// page, resolving principals to the waiting page.
func (m Middleware) Landing(w http.ResponseWriter, r *http.Request) {
	switch ut := UserTypeFromContext(r.Context()).(type) {
	case Loading:
		m.renderWaiting(w, r)
	case Staff:
		http.Redirect(w, r, StaffDashboardPath, http.StatusSeeOther)
	case Client:
		if !ut.Authenticated {
			m.toLogin(w, r)
			return
		}
		http.Redirect(w, r, ClientDashboardPath, http.StatusSeeOther)
	}
}

func (m Middleware) toLogin(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:    "Unauthorized",
			Status:   http.StatusUnauthorized,
			Detail:   "Sessão expirada ou inexistente",
			Redirect: LoginPath,
		})
		return
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

func (m Middleware) renderWaiting(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", loadingRetrySeconds)
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusAccepted, map[string]string{"status": Loading{}.String()})
		return
	}
	w.Header().Set("Refresh", loadingRetrySeconds)
	m.render(w, r, "pages/loading.html", "Carregando", nil, http.StatusOK)
}

// renderDenied answers with the notice and a 303 to the counterpart section.
// A 303 replaces the guarded URL in the browser history, so going back does
// not bounce between sections.
func (m Middleware) renderDenied(w http.ResponseWriter, r *http.Request, redirect string) {
	if httpx.WantsJSON(r) {
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:    "Forbidden",
			Status:   http.StatusForbidden,
			Detail:   DeniedMessage,
			Redirect: redirect,
		})
		return
	}
	shared.Flash(r, shared.FlashWarning, DeniedMessage)
	w.Header().Set("Location", redirect)
	w.Header().Set("Cache-Control", "no-store")
	m.render(w, r, "pages/access_denied.html", "Acesso negado", map[string]any{"Redirect": redirect}, http.StatusSeeOther)
}

func (m Middleware) render(w http.ResponseWriter, r *http.Request, name, title string, data map[string]any, status int) {
	var csrfToken string
	if sess := shared.SessionFromContext(r.Context()); sess != nil && m.CSRF != nil {
		csrfToken, _ = m.CSRF.EnsureToken(r.Context(), sess)
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if m.Templates == nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(title))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := m.Templates.Render(w, name, viewData); err != nil && m.Logger != nil {
		m.Logger.Error("render guard page", slog.String("template", name), slog.Any("error", err))
	}
}
