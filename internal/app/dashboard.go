package app

import (
	"log/slog"
	"net/http"

	"github.com/conformapro/conformapro/internal/auth"
	"github.com/conformapro/conformapro/internal/permissions"
	"github.com/conformapro/conformapro/internal/sites"
	"github.com/conformapro/conformapro/internal/view"
)

// dashboards renders the landing page of each section.
type dashboards struct {
	logger   *slog.Logger
	renderer view.Renderer
	sites    *sites.Service
}

func (d dashboards) client(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var principalID string
	if st := auth.StateFromContext(ctx); st.Principal != nil {
		principalID = st.Principal.ID
	}
	list, err := d.sites.Accessible(ctx, principalID)
	if err != nil {
		d.logger.Error("list sites", slog.Any("error", err))
		list = []sites.Site{}
	}
	res := permissions.FromContext(ctx)
	d.renderer.Render(w, r, "pages/dashboard.html", "Painel", map[string]any{
		"Sites":                  list,
		"SiteID":                 sites.IDFromContext(ctx),
		"Permissions":            res,
		"PermissionsUnavailable": res.Err() != nil,
	}, http.StatusOK)
}

func (d dashboards) staff(w http.ResponseWriter, r *http.Request) {
	var roles []string
	if st := auth.StateFromContext(r.Context()); st.Principal != nil {
		roles = st.Principal.Roles.Names()
	}
	d.renderer.Render(w, r, "pages/staff_dashboard.html", "Painel interno", map[string]any{
		"Roles": roles,
	}, http.StatusOK)
}
