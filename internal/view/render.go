package view

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/conformapro/conformapro/internal/shared"
)

// Viewer is the signed-in principal as the layout shows it.
type Viewer struct {
	Email    string
	UserType string
}

type viewerContextKey struct{}

// ContextWithViewer stores the layout viewer in ctx.
func ContextWithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerContextKey{}, v)
}

// ViewerFromContext returns the layout viewer, empty for visitors.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerContextKey{}).(Viewer)
	return v
}

// Renderer fills the per-request layout fields and renders a page.
type Renderer struct {
	Engine *Engine
	CSRF   *shared.CSRFManager
	Logger *slog.Logger
}

// Render writes page name with status.
func (rd Renderer) Render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	var (
		csrfToken string
		flash     *shared.FlashMessage
	)
	if sess != nil {
		if rd.CSRF != nil {
			csrfToken, _ = rd.CSRF.EnsureToken(r.Context(), sess)
		}
		flash = sess.PopFlash()
	}
	viewer := ViewerFromContext(r.Context())
	td := TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		UserEmail:   viewer.Email,
		UserType:    viewer.UserType,
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := rd.Engine.Render(w, name, td); err != nil {
		logger := rd.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}

// Error renders the generic error page with a user-facing message.
func (rd Renderer) Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	rd.Render(w, r, "pages/error.html", http.StatusText(status), map[string]any{"Message": message}, status)
}
