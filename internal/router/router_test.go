package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allankoechke/mantis/internal/jwtauth"
	"github.com/allankoechke/mantis/internal/mlog"
	"github.com/allankoechke/mantis/internal/ruleengine"
)

func newTestRouter(t *testing.T) (*Router, *jwtauth.Issuer) {
	t.Helper()

	issuer := jwtauth.NewIssuer("test-secret")
	deps := &Deps{Issuer: issuer, Evaluator: ruleengine.New()}

	r := New(deps, &mlog.NoneLogger{})
	r.Get("/api/v1/notes", func(req *Request, resp *Response) error {
		return resp.SendJSON(200, []any{}, "", nil)
	}, RuleMiddleware(deps, ""))

	r.Get("/api/v1/scoped-notes", func(req *Request, resp *Response) error {
		return resp.SendJSON(200, []any{}, "", nil)
	}, RuleMiddleware(deps, `auth.table == "users"`))

	return r, issuer
}

func doRequest(t *testing.T, r *Router, method, path, bearer string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := r.App.Test(req, -1)
	require.NoError(t, err)

	return resp
}

func TestEmptyRuleRequiresAdminToken(t *testing.T) {
	r, issuer := newTestRouter(t)

	guestResp := doRequest(t, r, "GET", "/api/v1/notes", "")
	assert.Equal(t, 403, guestResp.StatusCode)

	userToken, err := issuer.Issue("u1", "users")
	require.NoError(t, err)

	userResp := doRequest(t, r, "GET", "/api/v1/notes", userToken)
	assert.Equal(t, 403, userResp.StatusCode)

	adminToken, err := issuer.Issue("a1", "_admins")
	require.NoError(t, err)

	adminResp := doRequest(t, r, "GET", "/api/v1/notes", adminToken)
	assert.Equal(t, 200, adminResp.StatusCode)
}

func TestExpiredTokenReturns403WithReason(t *testing.T) {
	r, issuer := newTestRouter(t)
	issuer.SessionTimeout = -1 * time.Second
	issuer.AdminSessionTimeout = -1 * time.Second

	token, err := issuer.Issue("a1", "_admins")
	require.NoError(t, err)

	resp := doRequest(t, r, "GET", "/api/v1/notes", token)
	assert.Equal(t, 403, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "expired")
}

func TestScopedRuleEvaluation(t *testing.T) {
	r, issuer := newTestRouter(t)

	adminToken, err := issuer.Issue("a1", "_admins")
	require.NoError(t, err)
	adminResp := doRequest(t, r, "GET", "/api/v1/scoped-notes", adminToken)
	assert.Equal(t, 403, adminResp.StatusCode, "admins don't satisfy an auth.table == users rule")

	userToken, err := issuer.Issue("u1", "users")
	require.NoError(t, err)
	userResp := doRequest(t, r, "GET", "/api/v1/scoped-notes", userToken)
	assert.Equal(t, 200, userResp.StatusCode)

	guestResp := doRequest(t, r, "GET", "/api/v1/scoped-notes", "")
	assert.Equal(t, 403, guestResp.StatusCode)
}

func TestUnknownRouteReturns404(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := doRequest(t, r, "GET", "/api/v1/does-not-exist", "")
	assert.Equal(t, 404, resp.StatusCode)
}
