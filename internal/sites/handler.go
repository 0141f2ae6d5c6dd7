package sites

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/conformapro/conformapro/internal/access"
	"github.com/conformapro/conformapro/internal/auth"
	"github.com/conformapro/conformapro/internal/shared"
)

// Invalidator drops cached grants of a principal on a site.
type Invalidator interface {
	Invalidate(principalID, siteID string)
}

// Handler manages site selection endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	invalidator Invalidator
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// UseInvalidator refreshes cached grants whenever a site is selected, so a
// reselection picks up grant changes before the cache expires.
func (h *Handler) UseInvalidator(inv Invalidator) {
	h.invalidator = inv
}

// MountRoutes registers site routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/select", h.selectSite)
}

type selectForm struct {
	SiteID string `validate:"required,uuid"`
}

func (h *Handler) selectSite(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := selectForm{SiteID: r.PostFormValue("site_id")}
	if err := h.validator.Struct(form); err != nil {
		shared.RedirectWithFlash(w, r, access.ClientDashboardPath, shared.FlashError, "Unidade inválida")
		return
	}

	st := auth.StateFromContext(r.Context())
	if st.Principal == nil {
		http.Redirect(w, r, access.LoginPath, http.StatusSeeOther)
		return
	}
	site, err := h.service.Authorize(r.Context(), st.Principal.ID, form.SiteID)
	if err != nil {
		if errors.Is(err, ErrSiteNotFound) {
			shared.RedirectWithFlash(w, r, access.ClientDashboardPath, shared.FlashError, "Unidade não encontrada")
			return
		}
		h.logger.Error("authorize site", slog.Any("error", err))
		shared.RedirectWithFlash(w, r, access.ClientDashboardPath, shared.FlashError, shared.UserSafeMessage(err))
		return
	}

	if h.invalidator != nil {
		h.invalidator.Invalidate(st.Principal.ID, site.ID)
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.Set(SessionKey, site.ID)
	}
	shared.RedirectWithFlash(w, r, access.ClientDashboardPath, shared.FlashSuccess, "Unidade selecionada: "+site.Name)
}
