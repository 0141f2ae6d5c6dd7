package access_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conformapro/conformapro/internal/access"
	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/internal/view"
	_ "github.com/conformapro/conformapro/testing"
)

const protectedBody = "protected content"

func newMiddleware(t *testing.T) access.Middleware {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	return access.Middleware{Templates: templates, CSRF: shared.NewCSRFManager("secret")}
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, ut access.UserType, req *http.Request) (*httptest.ResponseRecorder, bool, *shared.Session) {
	t.Helper()
	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, _ = w.Write([]byte(protectedBody))
	}))
	sess := &shared.Session{ID: "s-1"}
	ctx := shared.ContextWithSession(req.Context(), sess)
	if ut != nil {
		ctx = access.ContextWithUserType(ctx, ut)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req.WithContext(ctx))
	return rr, called, sess
}

func TestClientGuardRedirectsStaff(t *testing.T) {
	m := newMiddleware(t)
	rr, called, sess := serve(t, m.RequireClient(), access.Staff{}, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/staff/dashboard", rr.Header().Get("Location"))
	assert.Contains(t, rr.Body.String(), "Acesso negado")
	assert.NotContains(t, rr.Body.String(), protectedBody)

	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, shared.FlashWarning, flash.Kind)
}

func TestStaffGuardRedirectsClient(t *testing.T) {
	m := newMiddleware(t)
	rr, called, _ := serve(t, m.RequireStaff(), access.Client{Authenticated: true}, httptest.NewRequest(http.MethodGet, "/staff/users", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
	assert.Contains(t, rr.Body.String(), "Acesso negado")
}

func TestGuardsAllowMatchingType(t *testing.T) {
	m := newMiddleware(t)

	rr, called, _ := serve(t, m.RequireStaff(), access.Staff{}, httptest.NewRequest(http.MethodGet, "/staff/dashboard", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, protectedBody, rr.Body.String())

	rr, called, _ = serve(t, m.RequireClient(), access.Client{Authenticated: true}, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.True(t, called)
	assert.Equal(t, protectedBody, rr.Body.String())
}

func TestGuardsWaitWhileLoading(t *testing.T) {
	m := newMiddleware(t)
	for _, mw := range []func(http.Handler) http.Handler{m.RequireClient(), m.RequireStaff()} {
		rr, called, _ := serve(t, mw, access.Loading{}, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		assert.False(t, called)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Location"), "loading must never redirect")
		assert.Equal(t, "2", rr.Header().Get("Refresh"))
		assert.Contains(t, rr.Body.String(), "Carregando")
	}
}

func TestGuardSendsAnonymousToLogin(t *testing.T) {
	m := newMiddleware(t)
	rr, called, _ := serve(t, m.RequireClient(), nil, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.False(t, called)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, access.LoginPath, rr.Header().Get("Location"))
}

func TestGuardDenyAsProblemForAPI(t *testing.T) {
	m := newMiddleware(t)
	rr, called, _ := serve(t, m.RequireClient(), access.Staff{}, httptest.NewRequest(http.MethodGet, "/api/permissions", nil))
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "/staff/dashboard", problem.Redirect)
	assert.Empty(t, rr.Header().Get("Location"))
}

func TestGuardLoadingAsAcceptedForAPI(t *testing.T) {
	m := newMiddleware(t)
	req := httptest.NewRequest(http.MethodGet, "/api/permissions", nil)
	rr, called, _ := serve(t, m.RequireClient(), access.Loading{}, req)
	assert.False(t, called)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))
}

func TestUserTypeFromEmptyContext(t *testing.T) {
	assert.Equal(t, access.Client{}, access.UserTypeFromContext(context.Background()))
}

func TestLandingDispatchesByUserType(t *testing.T) {
	m := newMiddleware(t)
	landing := func(http.Handler) http.Handler { return http.HandlerFunc(m.Landing) }
	cases := []struct {
		ut       access.UserType
		code     int
		location string
	}{
		{ut: access.Staff{}, code: http.StatusSeeOther, location: access.StaffDashboardPath},
		{ut: access.Client{Authenticated: true}, code: http.StatusSeeOther, location: access.ClientDashboardPath},
		{ut: access.Client{}, code: http.StatusSeeOther, location: access.LoginPath},
		{ut: access.Loading{}, code: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.ut.String(), func(t *testing.T) {
			rr, _, _ := serve(t, landing, tc.ut, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tc.code, rr.Code)
			assert.Equal(t, tc.location, rr.Header().Get("Location"))
		})
	}
}
