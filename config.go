package kick

import (
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/go-kick/kick/tui"
)

// Kick endpoints and defaults.
const (
	DefaultAuthURL     = "https://id.kick.com/oauth/authorize"
	DefaultTokenURL    = "https://id.kick.com/oauth/token"
	DefaultAPIBaseURL  = "https://api.kick.com"
	DefaultRedirectURI = "http://localhost:8080/callback"
	DefaultTokenFile   = "kick_tokens.json"
	DefaultAuthTimeout = 5 * time.Minute
)

// DefaultScopes are requested when the caller does not name any.
var DefaultScopes = []string{"user:read", "channel:read", "channel:write"}

// expirySkew is the safety margin subtracted from a token's lifetime: a
// token inside this margin is refreshed before it is handed out.
const expirySkew = time.Minute

// Config supplies everything needed to construct a Client or Authenticator.
// Only ClientID and ClientSecret are required.
type Config struct {
	ClientID     string
	ClientSecret string

	// RedirectURI must be a loopback URL with an explicit port; the local
	// listener binds to it. Defaults to DefaultRedirectURI.
	RedirectURI string

	// TokenFile is where the default FileStore persists tokens. Ignored
	// when Store is set. Defaults to DefaultTokenFile.
	TokenFile string

	// AuthTimeout bounds the wait for the browser redirect. Defaults to
	// DefaultAuthTimeout.
	AuthTimeout time.Duration

	// Scopes requested during authorization. Defaults to DefaultScopes.
	Scopes []string

	// Endpoint overrides, used by tests. Zero values select the Kick
	// production endpoints.
	AuthURL    string
	TokenURL   string
	APIBaseURL string

	// HTTPClient is used for the token and API requests.
	HTTPClient *http.Client

	// Store overrides token persistence (e.g. SQLiteStore).
	Store Store

	// Display receives flow progress events. Defaults to a no-op, which is
	// what library embedders usually want; the CLI passes a real one.
	Display tui.Displayer
}

func (c Config) withDefaults() Config {
	if c.RedirectURI == "" {
		c.RedirectURI = DefaultRedirectURI
	}
	if c.TokenFile == "" {
		c.TokenFile = DefaultTokenFile
	}
	if c.AuthTimeout == 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = defaultHTTPClient()
	}
	if c.Store == nil {
		c.Store = NewFileStore(c.TokenFile)
	}
	if c.Display == nil {
		c.Display = tui.NoopDisplayer{}
	}
	return c
}

func (c Config) validate() error {
	if c.ClientID == "" {
		return errors.New("client id is required")
	}
	if c.ClientSecret == "" {
		return errors.New("client secret is required")
	}
	return nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
