package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-appshell/core"
	goerrors "github.com/goliatone/go-errors"
)

const jwtRefreshKey = "jwt-refresh"

// JWTSource reads the JWT header/payload cookie set by the identity provider and
// refreshes it when it is missing or expired. Claims are decoded without
// signature verification; the server remains the authority.
type JWTSource struct {
	Jar        http.CookieJar
	Client     core.HTTPDoer
	CookieName string
	RefreshURL string
	CookieURL  string
	Now        func() time.Time
	refreshes  *TokenCache
	parser     *jwt.Parser
}

type JWTSourceConfig struct {
	Jar        http.CookieJar
	Client     core.HTTPDoer
	CookieName string
	// RefreshURL is the absolute refresh endpoint.
	RefreshURL string
	// CookieURL is where the cookie is scoped; defaults to RefreshURL.
	CookieURL string
	Metrics   core.MetricsRecorder
}

func NewJWTSource(cfg JWTSourceConfig) *JWTSource {
	source := &JWTSource{
		Jar:        cfg.Jar,
		Client:     cfg.Client,
		CookieName: strings.TrimSpace(cfg.CookieName),
		RefreshURL: strings.TrimSpace(cfg.RefreshURL),
		CookieURL:  strings.TrimSpace(cfg.CookieURL),
		Now:        time.Now,
		parser:     jwt.NewParser(),
	}
	if source.CookieName == "" {
		source.CookieName = core.DefaultAccessTokenCookieName
	}
	if source.CookieURL == "" {
		source.CookieURL = source.RefreshURL
	}
	if source.Client == nil {
		source.Client = &http.Client{Jar: cfg.Jar}
	}
	source.refreshes = NewTokenCache(source.refresh,
		WithCacheName("jwt"),
		WithCacheMetrics(cfg.Metrics),
		WithJoinOnly(),
	)
	return source
}

// Token returns the current JWT cookie value, refreshing it once when it is
// absent or expired. An empty token with a nil error means no user is logged in.
func (s *JWTSource) Token(ctx context.Context) (string, error) {
	if token := s.cookieValue(); token != "" && !s.expired(token) {
		return token, nil
	}
	token, err := s.refreshes.GetToken(ctx, jwtRefreshKey)
	if err != nil {
		if errorsIsUnauthenticated(err) {
			return "", nil
		}
		return "", err
	}
	if token == unauthenticatedToken {
		return "", nil
	}
	return token, nil
}

// Claims decodes the current token. Nil claims with a nil error mean no user.
func (s *JWTSource) Claims(ctx context.Context) (jwt.MapClaims, error) {
	token, err := s.Token(ctx)
	if err != nil || token == "" {
		return nil, err
	}
	return s.decode(token)
}

// unauthenticatedToken marks a refresh that succeeded without yielding a cookie.
const unauthenticatedToken = "\x00unauthenticated"

func (s *JWTSource) refresh(ctx context.Context, _ string) (string, error) {
	if s.RefreshURL == "" {
		return "", core.BadInputError("auth: refresh_access_token_endpoint is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.RefreshURL, nil)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "auth: build jwt refresh request").
			WithTextCode(core.ShellErrorTokenAcquisition)
	}
	res, err := s.Client.Do(req)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryExternal, "auth: jwt refresh request failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ShellErrorTokenAcquisition)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxTokenResponseBytes))

	if res.StatusCode == http.StatusUnauthorized {
		return unauthenticatedToken, nil
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", goerrors.New(
			fmt.Sprintf("auth: jwt refresh responded %d", res.StatusCode),
			goerrors.HTTPStatusToCategory(res.StatusCode),
		).
			WithCode(res.StatusCode).
			WithTextCode(core.ShellErrorTokenAcquisition)
	}
	if token := s.cookieValue(); token != "" {
		return token, nil
	}
	return unauthenticatedToken, nil
}

func (s *JWTSource) cookieValue() string {
	if s == nil || s.Jar == nil || s.CookieURL == "" {
		return ""
	}
	target, err := url.Parse(s.CookieURL)
	if err != nil {
		return ""
	}
	for _, cookie := range s.Jar.Cookies(target) {
		if cookie.Name == s.CookieName {
			return strings.TrimSpace(cookie.Value)
		}
	}
	return ""
}

func (s *JWTSource) decode(token string) (jwt.MapClaims, error) {
	// The cookie may carry only header.payload; the signature lives elsewhere.
	if strings.Count(token, ".") == 1 {
		token += "."
	}
	claims := jwt.MapClaims{}
	if _, _, err := s.parser.ParseUnverified(token, claims); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "auth: decode jwt cookie").
			WithCode(http.StatusUnauthorized).
			WithTextCode(core.ShellErrorTokenAcquisition)
	}
	return claims, nil
}

func (s *JWTSource) expired(token string) bool {
	claims, err := s.decode(token)
	if err != nil {
		return true
	}
	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return false
	}
	return !expiresAt.Time.After(s.Now())
}

func errorsIsUnauthenticated(err error) bool {
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.Code == http.StatusUnauthorized
}

// UserFromClaims maps identity provider claims onto an AuthenticatedUser.
func UserFromClaims(claims jwt.MapClaims) *core.AuthenticatedUser {
	if len(claims) == 0 {
		return nil
	}
	values := map[string]any(claims)
	user := &core.AuthenticatedUser{
		UserID:   claimText(values, "user_id", "sub"),
		Username: claimText(values, "preferred_username", "username"),
		Email:    claimText(values, "email"),
		Roles:    claimList(values, "roles"),
	}
	if admin, ok := values["administrator"].(bool); ok {
		user.Administrator = admin
	}
	if user.UserID == "" && user.Username == "" {
		return nil
	}
	return user
}
