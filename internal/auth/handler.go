package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/conformapro/conformapro/internal/access"
	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/internal/view"
)

// AccessTokenSessionKey holds the backend access token for sign-out.
const AccessTokenSessionKey = "access_token"

const invalidCredentialsMessage = "E-mail ou senha inválidos"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/status", h.status)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if StateFromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, loginPageData{}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				errs[fieldErr.Field()] = fieldErr.Tag()
			}
		}
	}
	if len(errs) > 0 {
		h.renderLogin(w, r, loginPageData{Form: loginForm{Email: form.Email}, Errors: errs}, http.StatusBadRequest)
		return
	}

	previous := sess.ID
	h.sessionManager.Renew(sess)
	result, err := h.service.SignIn(r.Context(), sess.ID, form.Email, form.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.logger.Info("sign in rejected")
		} else {
			h.logger.Error("sign in", slog.Any("error", err))
		}
		errs["general"] = invalidCredentialsMessage
		h.renderLogin(w, r, loginPageData{Form: loginForm{Email: form.Email}, Errors: errs}, http.StatusBadRequest)
		return
	}
	if err := h.service.SignOut(r.Context(), previous, ""); err != nil {
		h.logger.Warn("clear previous session state", slog.Any("error", err))
	}

	sess.SetUser(result.User.ID)
	sess.Set(AccessTokenSessionKey, result.AccessToken)
	h.csrfManager.Rotate(sess)
	sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Bem-vindo de volta"})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.SignOut(r.Context(), sess.ID, sess.Get(AccessTokenSessionKey)); err != nil {
			h.logger.Warn("sign out", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, access.LoginPath, http.StatusSeeOther)
}

type statusResponse struct {
	UserType  string   `json:"user_type"`
	Resolving bool     `json:"resolving"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles"`
}

// status lets the waiting page and scripts poll role resolution.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	st := StateFromContext(r.Context())
	resp := statusResponse{
		UserType:  access.UserTypeFromContext(r.Context()).String(),
		Resolving: st.Resolving(),
		Roles:     st.Roles().Names(),
	}
	if st.Principal != nil {
		resp.Email = st.Principal.Email
	}
	if resp.Roles == nil {
		resp.Roles = []string{}
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, data loginPageData, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Entrar",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
	}
}
