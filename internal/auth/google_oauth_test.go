package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	authmw "github.com/mind-engage/examdesk/internal/auth/middleware"
	"github.com/mind-engage/examdesk/internal/config"
	"github.com/mind-engage/examdesk/internal/logger"
	"github.com/mind-engage/examdesk/internal/users"
)

type dir map[string]users.User

func (d dir) Get(_ context.Context, id string) (users.User, error) {
	if u, ok := d[id]; ok {
		return u, nil
	}
	return users.User{}, users.ErrNotFound
}

func newGoogle(t *testing.T, profile GoogleProfile, accounts dir) (*Google, *authmw.AuthService) {
	t.Helper()
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "g-token", "token_type": "Bearer", "expires_in": 3600})
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer g-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(profile)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(idp.Close)

	tokens := authmw.NewAuthService("secret", time.Hour)
	g := NewGoogle(config.Config{
		PublicURL:         "https://exams.example.edu",
		GoogleClientID:    "cid",
		GoogleRedirectURI: "https://exams.example.edu/auth/google/callback",
		GoogleAllowedHD:   "example.edu",
	}, tokens, accounts, logger.New(logger.Options{Output: io.Discard}))
	g.oauth.Endpoint = oauth2.Endpoint{AuthURL: idp.URL + "/auth", TokenURL: idp.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	g.userInfo = idp.URL + "/userinfo"
	return g, tokens
}

func TestGoogleLoginRedirect(t *testing.T) {
	g, _ := newGoogle(t, GoogleProfile{}, dir{})

	rec := httptest.NewRecorder()
	g.LoginHandler()(rec, httptest.NewRequest(http.MethodGet, "/auth/google/login?redirect=/admin/", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "cid", loc.Query().Get("client_id"))
	assert.Equal(t, "example.edu", loc.Query().Get("hd"))
	assert.NotEmpty(t, loc.Query().Get("state"))

	rec = httptest.NewRecorder()
	g.LoginHandler()(rec, httptest.NewRequest(http.MethodGet, "/auth/google/login?redirect=https://evil.test/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func callback(g *Google, state string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state="+state, nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "st"})
	req.AddCookie(&http.Cookie{Name: redirectCookie, Value: url.QueryEscape("/admin/")})
	rec := httptest.NewRecorder()
	g.CallbackHandler()(rec, req)
	return rec
}

func TestGoogleCallbackStaff(t *testing.T) {
	profile := GoogleProfile{Sub: "1", Email: "Ann@example.edu", EmailVerified: true, HD: "example.edu"}
	g, tokens := newGoogle(t, profile, dir{
		"ann@example.edu": {ID: "u1", Username: "ann@example.edu", Role: users.RoleStaff, Active: true},
	})

	rec := callback(g, "st")
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/admin/", loc.Path)
	claims, err := tokens.Parse(loc.Query().Get("access_token"))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Sub)
	assert.Equal(t, "staff", claims.Role)

	assert.Equal(t, http.StatusBadRequest, callback(g, "other").Code)
}

func TestGoogleCallbackRejectsStudents(t *testing.T) {
	profile := GoogleProfile{Sub: "2", Email: "kid@example.edu", EmailVerified: true, HD: "example.edu"}
	g, _ := newGoogle(t, profile, dir{
		"kid@example.edu": {ID: "u2", Username: "kid@example.edu", Role: users.RoleStudent, Active: true},
	})
	rec := callback(g, "st")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	g2, _ := newGoogle(t, GoogleProfile{Sub: "3", Email: "x@other.org", EmailVerified: true, HD: "other.org"}, dir{})
	assert.Equal(t, http.StatusForbidden, callback(g2, "st").Code)
}
