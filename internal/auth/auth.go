package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/beekhof/ics-calendar-sync/internal/logging"
)

const (
	// DefaultTokenURL is Google's OAuth 2.0 token endpoint. It doubles as the
	// assertion audience.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	// GrantTypeJWTBearer is the RFC 7523 grant type.
	GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	assertionLifetime = time.Hour
	defaultExpiresIn  = 3600

	// ExpiryMargin is how long before expiry a cached token stops being
	// handed out, so it cannot lapse mid-request.
	ExpiryMargin = 60 * time.Second
)

// ErrAuth is returned when no access token could be obtained.
var ErrAuth = errors.New("authentication failed")

// Credentials identify a service account acting for a delegated subject.
type Credentials struct {
	Email      string
	PrivateKey string // PEM PKCS#8
	Subject    string // delegated user; falls back to Email
	Scopes     []string
	TokenURL   string // defaults to DefaultTokenURL
}

// Session exchanges signed assertions for bearer tokens. It holds the single
// token slot and the parsed signing key for its lifetime.
type Session struct {
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	key   *rsa.PrivateKey
	token *oauth2.Token
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient sets the client used for the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.httpClient = c }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession creates a Session. Credentials are validated lazily on the first
// exchange, apart from the presence checks done here.
func NewSession(creds Credentials, opts ...Option) (*Session, error) {
	if creds.Email == "" {
		return nil, fmt.Errorf("%w: service account email is required", ErrAuth)
	}
	if creds.PrivateKey == "" {
		return nil, fmt.Errorf("%w: private key is required", ErrAuth)
	}
	if creds.Subject == "" {
		creds.Subject = creds.Email
	}
	if creds.TokenURL == "" {
		creds.TokenURL = DefaultTokenURL
	}

	s := &Session{
		creds:      creds,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithOperation(s.logger, "auth.token")
	return s, nil
}

// AccessToken returns a bearer token string.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Token returns the cached token while it has more than ExpiryMargin left,
// otherwise performs a fresh exchange and replaces the cache.
func (s *Session) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != nil && s.token.Expiry.Sub(now) > ExpiryMargin {
		s.logger.Debug("reusing cached token", slog.Time("expiry", s.token.Expiry))
		return s.token, nil
	}

	tok, err := s.exchange(ctx, now)
	if err != nil {
		s.logger.Error("token exchange failed", logging.Status(logging.StatusError), logging.Err(err))
		return nil, err
	}
	s.token = tok
	s.logger.Info("token issued",
		logging.Status(logging.StatusSuccess),
		slog.String("token", logging.SanitizeToken(tok.AccessToken)),
		slog.Time("expiry", tok.Expiry))
	return tok, nil
}

// TokenSource adapts the session for oauth2-aware HTTP clients. Every request
// goes through the same cache.
func (s *Session) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, session: s}
}

type sessionTokenSource struct {
	ctx     context.Context
	session *Session
}

func (ts *sessionTokenSource) Token() (*oauth2.Token, error) {
	return ts.session.Token(ts.ctx)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (s *Session) exchange(ctx context.Context, now time.Time) (*oauth2.Token, error) {
	key, err := s.signingKey()
	if err != nil {
		return nil, err
	}

	assertion, err := s.assertion(key, now)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type": {GrantTypeJWTBearer},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.creds.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token request: %v", ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read token response: %v", ErrAuth, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: token endpoint returned HTTP %d: %s", ErrAuth, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%w: failed to parse token response: %v", ErrAuth, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response has no access_token", ErrAuth)
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = defaultExpiresIn
	}
	if tr.TokenType == "" {
		tr.TokenType = "Bearer"
	}

	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		Expiry:      now.Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// assertion builds the RS256 JWT presented to the token endpoint.
func (s *Session) assertion(key *rsa.PrivateKey, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":   s.creds.Email,
		"scope": strings.Join(s.creds.Scopes, " "),
		"aud":   s.creds.TokenURL,
		"sub":   s.creds.Subject,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: failed to sign assertion: %v", ErrAuth, err)
	}
	return signed, nil
}

// signingKey parses the private key once per session.
func (s *Session) signingKey() (*rsa.PrivateKey, error) {
	if s.key != nil {
		return s.key, nil
	}
	key, err := ParsePrivateKey(s.creds.PrivateKey)
	if err != nil {
		return nil, err
	}
	s.key = key
	return key, nil
}
