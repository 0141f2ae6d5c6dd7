package permissions_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conformapro/conformapro/internal/access"
	"github.com/conformapro/conformapro/internal/auth"
	"github.com/conformapro/conformapro/internal/export"
	"github.com/conformapro/conformapro/internal/permissions"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/internal/sites"
	"github.com/conformapro/conformapro/internal/view"
)

const (
	principalID = "u-1"
	siteID      = "0b0c6b6e-8a5a-4c55-9d1a-1f0d3c2b4a01"
)

type staticSource struct {
	grants []permissions.Grant
	err    error
}

func (s staticSource) Grants(context.Context, string, string) ([]permissions.Grant, error) {
	return s.grants, s.err
}

type harness struct {
	router  chi.Router
	session *shared.Session
}

func newHarness(t *testing.T, src permissions.Source) *harness {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	renderer := view.Renderer{Engine: engine, CSRF: shared.NewCSRFManager("x")}
	mw := permissions.Middleware{Source: src, Renderer: renderer}
	exporter := export.Exporter{Now: func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) }}
	h := permissions.NewHandler(nil, renderer, mw, exporter, nil)

	hs := &harness{session: &shared.Session{ID: "s-1"}}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithSession(req.Context(), hs.session)
			ctx = auth.ContextWithState(ctx, auth.State{Principal: &auth.Principal{ID: principalID}})
			ctx = access.ContextWithUserType(ctx, access.Client{Authenticated: true})
			ctx = sites.ContextWithSiteID(ctx, siteID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Use(mw.Load)
	r.Route("/dashboard/permissions", h.MountRoutes)
	r.Route("/api/permissions", h.MountAPI)
	hs.router = r
	return hs
}

func (hs *harness) get(target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	hs.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func grants(extra ...permissions.Grant) []permissions.Grant {
	return append([]permissions.Grant{
		{Module: "permissoes", Action: "visualizar", Decision: permissions.Allow},
	}, extra...)
}

func TestAPISnapshot(t *testing.T) {
	hs := newHarness(t, staticSource{grants: grants()})
	rr := hs.get("/api/permissions")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, fmt.Sprintf(`{
		"permissions": [{"module":"permissoes","action":"visualizar","decision":"allow"}],
		"isLoading": false,
		"siteId": %q
	}`, siteID), rr.Body.String())
}

func TestAPICheck(t *testing.T) {
	hs := newHarness(t, staticSource{grants: grants()})

	rr := hs.get("/api/permissions/check?module=PERMISSOES&action=visualizar")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"module":"PERMISSOES","action":"visualizar","allowed":true}`, rr.Body.String())

	rr = hs.get("/api/permissions/check?module=permissoes&action=exportar")
	assert.JSONEq(t, `{"module":"permissoes","action":"exportar","allowed":false}`, rr.Body.String())

	rr = hs.get("/api/permissions/check?module=permissoes")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPIUnavailableOnFetchError(t *testing.T) {
	hs := newHarness(t, staticSource{err: errors.New("db down")})
	rr := hs.get("/api/permissions")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestListRequiresViewGrant(t *testing.T) {
	hs := newHarness(t, staticSource{})
	rr := hs.get("/dashboard/permissions")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "permissão")
}

func TestListIsUnavailableOnFetchError(t *testing.T) {
	hs := newHarness(t, staticSource{err: errors.New("db down")})
	rr := hs.get("/dashboard/permissions")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestListPaginates(t *testing.T) {
	list := grants()
	for i := 0; i < 24; i++ {
		list = append(list, permissions.Grant{Module: fmt.Sprintf("modulo-%02d", i), Action: "ler", Decision: permissions.Deny})
	}
	hs := newHarness(t, staticSource{grants: list})

	rr := hs.get("/dashboard/permissions?page=2")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "modulo-23")
	assert.NotContains(t, body, "modulo-00")
	assert.NotContains(t, body, "/dashboard/permissions/export")
}

func TestExportRequiresExportGrant(t *testing.T) {
	hs := newHarness(t, staticSource{grants: grants()})
	rr := hs.get("/dashboard/permissions/export")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestExportDownloadsWorkbook(t *testing.T) {
	hs := newHarness(t, staticSource{grants: grants(
		permissions.Grant{Module: "permissoes", Action: "exportar", Decision: permissions.Allow},
	)})
	rr := hs.get("/dashboard/permissions/export")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, export.ContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "permissoes_2026-05-04.xlsx")
	assert.NotZero(t, rr.Body.Len())

	flash := hs.session.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, shared.FlashSuccess, flash.Kind)
}

type brokenBody struct {
	*httptest.ResponseRecorder
}

func (brokenBody) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestExportBodyFailureDoesNotRedirect(t *testing.T) {
	hs := newHarness(t, staticSource{grants: grants(
		permissions.Grant{Module: "permissoes", Action: "exportar", Decision: permissions.Allow},
	)})
	rr := httptest.NewRecorder()
	hs.router.ServeHTTP(brokenBody{rr}, httptest.NewRequest(http.MethodGet, "/dashboard/permissions/export", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Location"))

	flash := hs.session.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, export.MessageFailure, flash.Message)
}
