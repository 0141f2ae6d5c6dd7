package users

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conformapro/conformapro/internal/export"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/internal/view"
)

const listPath = "/staff/users"

// Handler serves the staff user directory.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer view.Renderer
	exporter export.Exporter
	archive  export.FileWriter
}

// NewHandler builds Handler instance. archive may be nil.
func NewHandler(logger *slog.Logger, service *Service, renderer view.Renderer, exporter export.Exporter, archive export.FileWriter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, renderer: renderer, exporter: exporter, archive: archive}
}

// MountRoutes registers user routes. Callers gate them to staff.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Get("/export", h.exportUsers)
}

type formErrors map[string]string

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	list, err := h.service.ListUsers(r.Context(), query)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.renderer.Render(w, r, "pages/users_list.html", "Usuários", map[string]any{
			"Errors": formErrors{"general": shared.UserSafeMessage(err)},
			"Query":  query,
		}, http.StatusInternalServerError)
		return
	}
	page := shared.NewPageWindow(list, shared.DefaultPageSize)
	page.GoToPage(shared.PageFromQuery(r))
	h.renderer.Render(w, r, "pages/users_list.html", "Usuários", map[string]any{
		"Users":      page.Items(),
		"Pagination": page.Meta(),
		"Query":      query,
	}, http.StatusOK)
}

func (h *Handler) exportUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.logger.Error("export users failed", slog.Any("error", err))
		shared.RedirectWithFlash(w, r, listPath, shared.FlashError, export.MessageFailure)
		return
	}
	table := export.Table{Columns: []string{"Nome", "E-mail", "Ativo", "Funções", "Criado em"}}
	for _, u := range list {
		active := "Não"
		if u.IsActive {
			active = "Sim"
		}
		table.Rows = append(table.Rows, export.Row{
			"Nome":      u.Name,
			"E-mail":    u.Email,
			"Ativo":     active,
			"Funções":   strings.Join(u.Roles, ", "),
			"Criado em": u.CreatedAt.UTC().Format("02/01/2006 15:04"),
		})
	}

	exp := h.exporter
	download := &export.DownloadWriter{W: w}
	exp.Writer = export.Archived{Primary: download, Archive: h.archive, Logger: h.logger}
	exp.Notifier = export.SessionNotifier{Session: shared.SessionFromContext(r.Context())}
	if exp.Logger == nil {
		exp.Logger = h.logger
	}
	if _, ok := exp.ExportToExcel(r.Context(), table, "usuarios", "Usuários"); !ok && !download.Committed() {
		http.Redirect(w, r, listPath, http.StatusSeeOther)
	}
}
