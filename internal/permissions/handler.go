package permissions

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conformapro/conformapro/internal/export"
	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/internal/sites"
	"github.com/conformapro/conformapro/internal/view"
)

// Grants about the permission listing itself.
const (
	ModulePermissions = "permissoes"
	ActionView        = "visualizar"
	ActionExport      = "exportar"
)

const listPath = "/dashboard/permissions"

// Handler serves the grant listing, its xlsx export and the JSON API.
type Handler struct {
	logger   *slog.Logger
	renderer view.Renderer
	mw       Middleware
	exporter export.Exporter
	archive  export.FileWriter
}

// NewHandler builds a Handler. archive may be nil.
func NewHandler(logger *slog.Logger, renderer view.Renderer, mw Middleware, exporter export.Exporter, archive export.FileWriter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, renderer: renderer, mw: mw, exporter: exporter, archive: archive}
}

// MountRoutes attaches the HTML routes. The resolver must already be loaded.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.mw.Require(ModulePermissions, ActionView)).Get("/", h.list)
	r.With(h.mw.Require(ModulePermissions, ActionExport)).Get("/export", h.export)
}

// MountAPI attaches the JSON routes.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/", h.snapshot)
	r.Get("/check", h.check)
}

type snapshotResponse struct {
	Permissions []Grant `json:"permissions"`
	IsLoading   bool    `json:"isLoading"`
	SiteID      string  `json:"siteId"`
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	res := FromContext(r.Context())
	if res.Err() != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", unavailableMessage)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, snapshotResponse{
		Permissions: res.Permissions(),
		IsLoading:   res.IsLoading(),
		SiteID:      sites.IDFromContext(r.Context()),
	})
}

type checkResponse struct {
	Module  string `json:"module"`
	Action  string `json:"action"`
	Allowed bool   `json:"allowed"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	module := strings.TrimSpace(r.URL.Query().Get("module"))
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	if module == "" || action == "" {
		httpx.RespondError(w, fmt.Errorf("%w: module e action são obrigatórios", httpx.ErrValidation))
		return
	}
	res := FromContext(r.Context())
	if res.Err() != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", unavailableMessage)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, checkResponse{Module: module, Action: action, Allowed: res.HasPermission(module, action)})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	res := FromContext(r.Context())
	page := shared.NewPageWindow(res.Permissions(), shared.DefaultPageSize)
	page.GoToPage(shared.PageFromQuery(r))
	h.renderer.Render(w, r, "pages/permissions_list.html", "Permissões", map[string]any{
		"Grants":     page.Items(),
		"Pagination": page.Meta(),
		"CanExport":  res.HasPermission(ModulePermissions, ActionExport),
	}, http.StatusOK)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	grants := FromContext(r.Context()).Permissions()
	table := export.Table{Columns: []string{"Módulo", "Ação", "Decisão"}}
	for _, g := range grants {
		table.Rows = append(table.Rows, export.Row{
			"Módulo":  g.Module,
			"Ação":    g.Action,
			"Decisão": string(g.Decision),
		})
	}

	exp := h.exporter
	download := &export.DownloadWriter{W: w}
	exp.Writer = export.Archived{Primary: download, Archive: h.archive, Logger: h.logger}
	exp.Notifier = export.SessionNotifier{Session: shared.SessionFromContext(r.Context())}
	if exp.Logger == nil {
		exp.Logger = h.logger
	}
	if _, ok := exp.ExportToExcel(r.Context(), table, "permissoes", "Permissões"); !ok && !download.Committed() {
		http.Redirect(w, r, listPath, http.StatusSeeOther)
	}
}
