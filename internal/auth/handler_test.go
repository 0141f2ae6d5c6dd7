package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conformapro/conformapro/internal/access"
	"github.com/conformapro/conformapro/internal/auth"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/internal/view"
	_ "github.com/conformapro/conformapro/testing"
)

type handlerFixture struct {
	*fixture
	sessions *shared.SessionManager
	router   http.Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newFixture(t)
	client := redis.NewClient(&redis.Options{Addr: f.mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	templates, err := view.NewEngine()
	require.NoError(t, err)
	handler := auth.NewHandler(nil, f.service, templates, sessions, shared.NewCSRFManager("csrfsecret"))

	router := chi.NewRouter()
	router.Use(auth.Middleware{Service: f.service, Partition: access.DefaultPartition()}.Handler)
	router.Route("/auth", handler.MountRoutes)
	return &handlerFixture{fixture: f, sessions: sessions, router: router}
}

// do runs req through the session lifecycle the app middleware provides.
func (h *handlerFixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	require.NoError(t, h.sessions.Commit(ctx, res, req, sess))
	return res, sess
}

func loginRequest(email, password string, cookie *http.Cookie) *http.Request {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestLoginPage(t *testing.T) {
	h := newHandlerFixture(t)
	res, sess := h.do(t, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<form")
	assert.NotEmpty(t, sess.Get(shared.CSRFSessionKey))
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHandlerFixture(t)
	res, _ := h.do(t, loginRequest(testEmail, "senhaerrada", nil))

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "E-mail ou senha inválidos")
}

func TestLoginValidationErrors(t *testing.T) {
	h := newHandlerFixture(t)
	res, _ := h.do(t, loginRequest("nao-e-email", "", nil))

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "E-mail inválido")
	assert.Contains(t, res.Body.String(), "Senha inválida")
}

func TestLoginRenewsSessionAndStoresState(t *testing.T) {
	h := newHandlerFixture(t)
	h.roles.roles[testUserID] = []string{"Usuário Cliente"}

	_, first := h.do(t, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	cookie := &http.Cookie{Name: h.sessions.CookieName(), Value: first.ID}

	res, sess := h.do(t, loginRequest(testEmail, testPassword, cookie))
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/", res.Header().Get("Location"))
	assert.NotEqual(t, first.ID, sess.ID, "session id is rotated on sign-in")
	assert.Equal(t, testUserID, sess.User())
	assert.NotEmpty(t, sess.Get(auth.AccessTokenSessionKey))
	assert.False(t, h.mr.Exists("session:"+first.ID))

	st, err := h.service.State(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, st.Authenticated())

	status, _ := h.do(t, withCookie(httptest.NewRequest(http.MethodGet, "/auth/status", nil), h.sessions.CookieName(), sess.ID))
	var body map[string]any
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &body))
	assert.Equal(t, "client", body["user_type"])
	assert.Equal(t, false, body["resolving"])
	assert.Equal(t, testEmail, body["email"])
}

func TestLoginPageRedirectsSignedInUser(t *testing.T) {
	h := newHandlerFixture(t)
	_, sess := h.do(t, loginRequest(testEmail, testPassword, nil))

	res, _ := h.do(t, withCookie(httptest.NewRequest(http.MethodGet, "/auth/login", nil), h.sessions.CookieName(), sess.ID))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/", res.Header().Get("Location"))

	// An unknown cookie never adopts the client supplied id.
	res, fresh := h.do(t, withCookie(httptest.NewRequest(http.MethodGet, "/auth/login", nil), h.sessions.CookieName(), "forged"))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.NotEqual(t, "forged", fresh.ID)
}

func TestLogoutClearsState(t *testing.T) {
	h := newHandlerFixture(t)
	_, sess := h.do(t, loginRequest(testEmail, testPassword, nil))

	res, _ := h.do(t, withCookie(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), h.sessions.CookieName(), sess.ID))
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, access.LoginPath, res.Header().Get("Location"))
	assert.False(t, h.mr.Exists("auth:state:"+sess.ID))
	assert.False(t, h.mr.Exists("session:"+sess.ID))
	assert.Len(t, h.provider.signedOut, 1)
}

func TestStatusForAnonymousVisitor(t *testing.T) {
	h := newHandlerFixture(t)
	res, _ := h.do(t, httptest.NewRequest(http.MethodGet, "/auth/status", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "client", body["user_type"])
	assert.Equal(t, []any{}, body["roles"])
	assert.Equal(t, "no-store", res.Header().Get("Cache-Control"))
}

func TestMiddlewareRejectsInvalidBearer(t *testing.T) {
	h := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.Header.Set("Authorization", "Bearer nope")
	res, _ := h.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestMiddlewareResolvesBearerAsStaff(t *testing.T) {
	h := newHandlerFixture(t)
	h.roles.roles["u-staff"] = []string{"Super Admin"}
	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, userClaims("u-staff", "ops@conformapro.com.br")))
	res, _ := h.do(t, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "staff", body["user_type"])
}

func withCookie(req *http.Request, name, value string) *http.Request {
	req.AddCookie(&http.Cookie{Name: name, Value: value})
	return req
}
