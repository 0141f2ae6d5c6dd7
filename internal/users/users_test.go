package users_test

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

	"github.com/conformapro/conformapro/internal/export"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/internal/users"
	"github.com/conformapro/conformapro/internal/view"
)

type stubRepo struct {
	users []users.User
	err   error
}

func (s stubRepo) ListUsers(context.Context) ([]users.User, error) {
	return s.users, s.err
}

func directory(n int) []users.User {
	out := []users.User{{ID: "u-ana", Email: "ana@conformapro.com.br", Name: "Ana Souza", IsActive: true, Roles: []string{"admin"}}}
	for i := 0; i < n; i++ {
		out = append(out, users.User{ID: fmt.Sprintf("u-%02d", i), Email: fmt.Sprintf("cliente%02d@empresa.com", i), Name: fmt.Sprintf("Cliente %02d", i)})
	}
	return out
}

func TestListUsersFiltersIgnoringCase(t *testing.T) {
	svc := users.NewService(stubRepo{users: directory(3)})

	all, err := svc.ListUsers(context.Background(), "  ")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	found, err := svc.ListUsers(context.Background(), "SOUZA")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "u-ana", found[0].ID)

	found, err = svc.ListUsers(context.Background(), "empresa.com")
	require.NoError(t, err)
	assert.Len(t, found, 3)
}

type harness struct {
	router  chi.Router
	session *shared.Session
}

func newHarness(t *testing.T, repo stubRepo) *harness {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	renderer := view.Renderer{Engine: engine}
	exporter := export.Exporter{Now: func() time.Time { return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC) }}
	h := users.NewHandler(nil, users.NewService(repo), renderer, exporter, nil)

	hs := &harness{session: &shared.Session{ID: "s-1"}}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), hs.session)))
		})
	})
	r.Route("/staff/users", h.MountRoutes)
	hs.router = r
	return hs
}

func (hs *harness) get(target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	hs.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestListPage(t *testing.T) {
	hs := newHarness(t, stubRepo{users: directory(25)})

	rr := hs.get("/staff/users/?page=2")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Cliente 24")
	assert.NotContains(t, body, "Ana Souza")
	assert.Contains(t, body, "Página 2 de 2")
}

func TestListPageShowsSafeError(t *testing.T) {
	hs := newHarness(t, stubRepo{err: errors.New("pq: relation profiles does not exist")})

	rr := hs.get("/staff/users/")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "profiles")
	assert.Contains(t, rr.Body.String(), "erro inesperado")
}

func TestExportUsers(t *testing.T) {
	hs := newHarness(t, stubRepo{users: directory(2)})

	rr := hs.get("/staff/users/export")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "usuarios_2026-02-01.xlsx")

	flash := hs.session.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, shared.FlashSuccess, flash.Kind)
}

func TestExportEmptyDirectoryRedirects(t *testing.T) {
	hs := newHarness(t, stubRepo{})

	rr := hs.get("/staff/users/export?q=ninguem")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/staff/users", rr.Header().Get("Location"))

	flash := hs.session.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, export.MessageEmpty, flash.Message)
}
