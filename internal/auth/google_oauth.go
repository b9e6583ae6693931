// Package auth holds the optional Google sign-in flow for staff accounts.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	authmw "github.com/mind-engage/examdesk/internal/auth/middleware"
	"github.com/mind-engage/examdesk/internal/config"
	"github.com/mind-engage/examdesk/internal/logger"
	"github.com/mind-engage/examdesk/internal/users"
)

const (
	stateCookie    = "examdesk_oauth_state"
	redirectCookie = "examdesk_post_auth_redirect"

	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

var ErrNotStaff = errors.New("google sign-in is limited to staff accounts")

type GoogleProfile struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	HD            string `json:"hd"`
	Name          string `json:"name"`
}

type Google struct {
	oauth     *oauth2.Config
	userInfo  string
	allowedHD string
	publicURL string
	tokens    *authmw.AuthService
	dir       authmw.Directory
	log       *logger.Logger
}

func NewGoogle(cfg config.Config, tokens *authmw.AuthService, dir authmw.Directory, log *logger.Logger) *Google {
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfo:  googleUserInfoURL,
		allowedHD: cfg.GoogleAllowedHD,
		publicURL: cfg.PublicURL,
		tokens:    tokens,
		dir:       dir,
		log:       log,
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// sameOrigin allows relative targets, PUBLIC_URL and localhost.
func (g *Google) sameOrigin(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Host == "" || strings.HasPrefix(u.Host, "localhost") {
		return true
	}
	base, err := url.Parse(g.publicURL)
	return err == nil && base.Host != "" && u.Scheme == base.Scheme && u.Host == base.Host
}

func (g *Google) fallbackTarget() string {
	return strings.TrimRight(g.publicURL, "/") + "/"
}

func shortCookie(name, value string, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(10 * time.Minute),
	}
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", Expires: time.Unix(0, 0), MaxAge: -1})
}

// LoginHandler redirects to Google. ?redirect= names the page to return to.
func (g *Google) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next := r.URL.Query().Get("redirect")
		if next == "" {
			next = g.fallbackTarget()
		}
		if !g.sameOrigin(next) {
			http.Error(w, "bad redirect", http.StatusBadRequest)
			return
		}
		state, err := randomState()
		if err != nil {
			http.Error(w, "state", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, shortCookie(stateCookie, state, true))
		http.SetCookie(w, shortCookie(redirectCookie, url.QueryEscape(next), false))

		var opts []oauth2.AuthCodeOption
		if g.allowedHD != "" {
			opts = append(opts, oauth2.SetAuthURLParam("hd", g.allowedHD))
		}
		http.Redirect(w, r, g.oauth.AuthCodeURL(state, opts...), http.StatusFound)
	}
}

func (g *Google) profile(ctx context.Context, tok *oauth2.Token) (GoogleProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfo, nil)
	if err != nil {
		return GoogleProfile{}, err
	}
	resp, err := g.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return GoogleProfile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return GoogleProfile{}, fmt.Errorf("userinfo returned %d", resp.StatusCode)
	}
	var p GoogleProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return GoogleProfile{}, err
	}
	return p, nil
}

// staffAccount maps a verified Google profile to an active staff or admin
// account whose username is the Google email.
func (g *Google) staffAccount(ctx context.Context, p GoogleProfile) (users.User, error) {
	if p.Email == "" || !p.EmailVerified {
		return users.User{}, errors.New("google email not verified")
	}
	if g.allowedHD != "" && !strings.EqualFold(p.HD, g.allowedHD) {
		return users.User{}, errors.New("unauthorized domain")
	}
	u, err := g.dir.Get(ctx, p.Email)
	if errors.Is(err, users.ErrNotFound) && strings.ToLower(p.Email) != p.Email {
		u, err = g.dir.Get(ctx, strings.ToLower(p.Email))
	}
	if errors.Is(err, users.ErrNotFound) {
		return users.User{}, ErrNotStaff
	}
	if err != nil {
		return users.User{}, err
	}
	if !u.Active {
		return users.User{}, users.ErrInactive
	}
	if u.Role != users.RoleStaff && u.Role != users.RoleAdmin {
		return users.User{}, ErrNotStaff
	}
	return u, nil
}

// CallbackHandler exchanges the code, resolves the staff account, sets the
// access token cookie and redirects back with ?access_token=.
func (g *Google) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		c, err := r.Cookie(stateCookie)
		if state == "" || err != nil || c.Value != state {
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		ctx := r.Context()
		tok, err := g.oauth.Exchange(ctx, code)
		if err != nil {
			g.log.Warnf("google token exchange: %v", err)
			http.Error(w, "token exchange error", http.StatusBadGateway)
			return
		}
		p, err := g.profile(ctx, tok)
		if err != nil {
			g.log.Warnf("google userinfo: %v", err)
			http.Error(w, "userinfo error", http.StatusBadGateway)
			return
		}
		u, err := g.staffAccount(ctx, p)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		access, exp, err := g.tokens.IssueJWT(u.ID, string(u.Role))
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     authmw.TokenCookie,
			Value:    access,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
			Expires:  exp,
		})

		target := ""
		if c, err := r.Cookie(redirectCookie); err == nil {
			target, _ = url.QueryUnescape(c.Value)
		}
		if target == "" || !g.sameOrigin(target) {
			target = g.fallbackTarget()
		}
		clearCookie(w, stateCookie)
		clearCookie(w, redirectCookie)

		dst, err := url.Parse(target)
		if err != nil {
			dst = &url.URL{Path: "/"}
		}
		q := dst.Query()
		q.Set("access_token", access)
		dst.RawQuery = q.Encode()
		http.Redirect(w, r, dst.String(), http.StatusFound)
	}
}
