package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/goliatone/go-appshell/core"
	"github.com/goliatone/go-appshell/transport"
	goerrors "github.com/goliatone/go-errors"
)

// Service is the default AuthService. It owns the CSRF token cache, the JWT
// cookie source and two HTTP clients: an authenticated one that runs the token
// interceptors and a public one that never attaches tokens.
type Service struct {
	mu            sync.RWMutex
	user          *core.AuthenticatedUser
	shell         *core.Shell
	fallback      core.Config
	logger        core.Logger
	csrf          *TokenCache
	jwt           *JWTSource
	authenticated *transport.Client
	public        *transport.Client
}

type Option func(*serviceBuilder)

type serviceBuilder struct {
	jar                 http.CookieJar
	requestInterceptors []transport.RequestInterceptor
	errorInterceptors   []transport.ErrorInterceptor
}

// WithCookieJar shares jar between the token fetchers and the HTTP clients.
func WithCookieJar(jar http.CookieJar) Option {
	return func(b *serviceBuilder) {
		b.jar = jar
	}
}

// WithRequestInterceptors appends interceptors after the token providers.
func WithRequestInterceptors(interceptors ...transport.RequestInterceptor) Option {
	return func(b *serviceBuilder) {
		b.requestInterceptors = append(b.requestInterceptors, interceptors...)
	}
}

// WithErrorInterceptors appends interceptors after error normalization.
func WithErrorInterceptors(interceptors ...transport.ErrorInterceptor) Option {
	return func(b *serviceBuilder) {
		b.errorInterceptors = append(b.errorInterceptors, interceptors...)
	}
}

// New is a core.Constructor for the auth slot.
func New(opts core.ServiceOptions) (core.AuthService, error) {
	return NewService(opts)
}

// Constructor returns a core.Constructor carrying extra options.
func Constructor(options ...Option) core.Constructor[core.AuthService] {
	return func(opts core.ServiceOptions) (core.AuthService, error) {
		return NewService(opts, options...)
	}
}

func NewService(opts core.ServiceOptions, options ...Option) (*Service, error) {
	builder := serviceBuilder{}
	for _, option := range options {
		if option != nil {
			option(&builder)
		}
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "auth: invalid config").
			WithTextCode(core.ShellErrorBadInput)
	}

	doer := opts.HTTPClient
	if builder.jar == nil {
		if client, ok := doer.(*http.Client); ok && client.Jar != nil {
			builder.jar = client.Jar
		} else {
			jar, err := cookiejar.New(nil)
			if err != nil {
				return nil, fmt.Errorf("auth: create cookie jar: %w", err)
			}
			builder.jar = jar
		}
	}
	if doer == nil {
		doer = &http.Client{Jar: builder.jar}
	}

	svc := &Service{
		shell:    opts.Shell,
		fallback: opts.Config,
		logger:   opts.Logger,
	}
	svc.csrf = NewCSRFTokenCache(doer, svc.config, opts.Metrics)
	svc.jwt = NewJWTSource(JWTSourceConfig{
		Jar:        builder.jar,
		Client:     doer,
		CookieName: opts.Config.AccessTokenCookieName,
		RefreshURL: refreshURL(opts.Config),
		CookieURL:  identityOrigin(opts.Config),
		Metrics:    opts.Metrics,
	})

	var infoLogger InfoLogger
	if opts.Shell != nil {
		infoLogger = opts.Shell
	}
	normalize := NewErrorNormalizationInterceptor(infoLogger)

	authenticated := transport.NewPipeline().
		UseRequest(
			NewTokenProviderInterceptor(JWTCookieSource{Source: svc.jwt}, SkipPublic),
			NewTokenProviderInterceptor(CSRFTokenSource{Cache: svc.csrf}, AnySkip(SkipPublic, SkipSafeMethods)),
		).
		UseRequest(builder.requestInterceptors...).
		UseError(normalize).
		UseError(builder.errorInterceptors...)
	svc.authenticated = transport.NewClient(doer, authenticated)
	svc.authenticated.BaseURL = opts.Config.BaseURL

	public := transport.NewPipeline().
		UseRequest(builder.requestInterceptors...).
		UseError(normalize).
		UseError(builder.errorInterceptors...)
	svc.public = transport.NewClient(doer, public)
	svc.public.BaseURL = opts.Config.BaseURL
	return svc, nil
}

func (s *Service) config() core.Config {
	if s.shell != nil {
		if cfg := s.shell.GetConfig(); strings.TrimSpace(cfg.ServiceName) != "" {
			return cfg
		}
	}
	return s.fallback
}

func (s *Service) AuthenticatedHTTPClient() core.RequestDoer {
	return s.authenticated
}

// PublicHTTPClient never attaches CSRF or JWT credentials.
func (s *Service) PublicHTTPClient() core.RequestDoer {
	return s.public
}

func (s *Service) GetAuthenticatedUser() *core.AuthenticatedUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.user)
}

// SetAuthenticatedUser stores user. CSRF tokens are session bound, so cached
// tokens are dropped when the user id changes.
func (s *Service) SetAuthenticatedUser(user *core.AuthenticatedUser) {
	s.mu.Lock()
	changed := userID(s.user) != userID(user)
	s.user = cloneUser(user)
	s.mu.Unlock()
	if changed && s.csrf != nil {
		s.csrf.Clear()
	}
	if s.shell != nil {
		s.shell.PublishIfConfigured(core.TopicAuthenticatedUserChanged, cloneUser(user))
	}
}

// FetchAuthenticatedUser reads the user from the JWT cookie, refreshing it if
// needed, and stores the result. A nil user means nobody is logged in.
func (s *Service) FetchAuthenticatedUser(ctx context.Context) (*core.AuthenticatedUser, error) {
	claims, err := s.jwt.Claims(ctx)
	if err != nil {
		return nil, err
	}
	user := UserFromClaims(claims)
	s.SetAuthenticatedUser(user)
	return cloneUser(user), nil
}

// EnsureAuthenticatedUser fails with an auth error carrying the login URL when
// no user is logged in.
func (s *Service) EnsureAuthenticatedUser(ctx context.Context, redirectURL string) (*core.AuthenticatedUser, error) {
	user, err := s.FetchAuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, goerrors.New("auth: no authenticated user", goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).
			WithTextCode(core.ShellErrorUnauthorized).
			WithMetadata(map[string]any{"login_url": s.LoginURL(redirectURL)})
	}
	return user, nil
}

// GetCSRFToken returns the CSRF token for the origin of rawURL.
func (s *Service) GetCSRFToken(ctx context.Context, rawURL string) (string, error) {
	return s.csrf.GetTokenForURL(ctx, rawURL)
}

func (s *Service) CSRFTokenCache() *TokenCache {
	return s.csrf
}

func (s *Service) JWTSource() *JWTSource {
	return s.jwt
}

func (s *Service) LoginURL(redirectURL string) string {
	return withQuery(s.config().LoginURL, "next", s.redirectTarget(redirectURL))
}

func (s *Service) LogoutURL(redirectURL string) string {
	return withQuery(s.config().LogoutURL, "redirect_url", s.redirectTarget(redirectURL))
}

func (s *Service) redirectTarget(redirectURL string) string {
	if strings.TrimSpace(redirectURL) != "" {
		return redirectURL
	}
	return s.config().BaseURL
}

func withQuery(base string, key string, value string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return base
	}
	query := parsed.Query()
	query.Set(key, value)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func identityOrigin(cfg core.Config) string {
	if origin := OriginOf(cfg.LMSBaseURL); origin != "" {
		return origin
	}
	return cfg.PageOrigin()
}

func refreshURL(cfg core.Config) string {
	endpoint := strings.TrimSpace(cfg.RefreshAccessTokenEndpoint)
	if endpoint == "" {
		return ""
	}
	if OriginOf(endpoint) != "" {
		return endpoint
	}
	return strings.TrimRight(identityOrigin(cfg), "/") + "/" + strings.TrimLeft(endpoint, "/")
}

func cloneUser(user *core.AuthenticatedUser) *core.AuthenticatedUser {
	if user == nil {
		return nil
	}
	cloned := *user
	cloned.Roles = append([]string(nil), user.Roles...)
	return &cloned
}

func userID(user *core.AuthenticatedUser) string {
	if user == nil {
		return ""
	}
	return user.UserID
}

var _ core.AuthService = (*Service)(nil)
