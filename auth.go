package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/go-kick/kick/tui"
)

// Authenticator owns the token lifecycle: it loads the persisted TokenSet,
// refreshes it when it is inside the expiry margin, and runs the full
// browser authorization flow when nothing usable is stored. All callers go
// through Token.
type Authenticator struct {
	cfg   Config
	store Store
	http  *http.Client
	d     tui.Displayer

	// mu serializes token checks and authorization flows so only one flow
	// can be in flight against the redirect port per Authenticator.
	mu sync.Mutex

	// Injection points; tests substitute fakes so flows run without
	// sockets or a browser.
	newWaiter func(redirectURI, expectedState string) (redirectWaiter, error)
	openURL   func(url string) error
	newState  func() string
	newPKCE   func() (*pkceCodes, error)
}

// NewAuthenticator creates an Authenticator from cfg.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Authenticator{
		cfg:   cfg,
		store: cfg.Store,
		http:  cfg.HTTPClient,
		d:     cfg.Display,
		newWaiter: func(redirectURI, expectedState string) (redirectWaiter, error) {
			return newRedirectListener(redirectURI, expectedState)
		},
		openURL:  openBrowser,
		newState: uuid.NewString,
		newPKCE:  generatePKCE,
	}, nil
}

// Token returns a valid access token for the requested scopes, running a
// refresh or a full authorization flow as needed. A nil scopes slice
// requests the configured defaults. The stored token is returned without
// any network call when it covers the scopes and is outside the expiry
// margin.
func (a *Authenticator) Token(ctx context.Context, scopes []string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token(ctx, scopes, false)
}

// Current returns the stored TokenSet without triggering any flow.
// (nil, nil) means nothing usable is stored.
func (a *Authenticator) Current() (*TokenSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Load()
}

// ForceReauthorize runs a full authorization flow regardless of what is
// stored. Used after an API call comes back 401: the token was presumably
// revoked between check and use.
func (a *Authenticator) ForceReauthorize(ctx context.Context, scopes []string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token(ctx, scopes, true)
}

func (a *Authenticator) token(ctx context.Context, scopes []string, force bool) (string, error) {
	if len(scopes) == 0 {
		scopes = a.cfg.Scopes
	}

	var stored *TokenSet
	if ts, err := a.store.Load(); err == nil {
		stored = ts
	}

	if force {
		a.d.ReAuthRequired()
		if stored != nil {
			scopes = unionScopes(stored.Scopes, scopes)
		}
		return a.authorizeToken(ctx, scopes)
	}

	if stored == nil {
		a.d.TokensNotFound()
		return a.authorizeToken(ctx, scopes)
	}
	a.d.TokensFound()

	// A stored token missing requested scopes is insufficient even if it
	// has lifetime left: re-authorize with the union, never hand out an
	// under-scoped token.
	if missing := missingScopes(stored.Scopes, scopes); len(missing) > 0 {
		a.d.InsufficientScopes(missing)
		return a.authorizeToken(ctx, unionScopes(stored.Scopes, scopes))
	}

	if stored.ValidFor(expirySkew) {
		a.d.TokenValid()
		return stored.AccessToken, nil
	}
	a.d.TokenExpired()

	if stored.RefreshToken != "" {
		a.d.Refreshing()
		ts, err := a.refresh(ctx, stored)
		if err == nil {
			a.d.RefreshOK()
			return ts.AccessToken, nil
		}
		// A rejected refresh token is recovered locally: the user's intent
		// is always "give me a usable token", so escalate to a full flow.
		a.d.RefreshFailed(err)
	}

	return a.authorizeToken(ctx, scopes)
}

func (a *Authenticator) authorizeToken(ctx context.Context, scopes []string) (string, error) {
	ts, err := a.authorize(ctx, scopes)
	if err != nil {
		return "", err
	}
	return ts.AccessToken, nil
}

// authorize runs one complete browser authorization: PKCE + state, arm the
// local listener, open the browser, await the redirect, exchange the code,
// persist. Linear, no retries; the caller re-invokes after a denial or
// timeout.
func (a *Authenticator) authorize(ctx context.Context, scopes []string) (*TokenSet, error) {
	codes, err := a.newPKCE()
	if err != nil {
		return nil, err
	}
	state := a.newState()

	// Arm the listener before the browser opens so an early redirect is
	// not lost.
	waiter, err := a.newWaiter(a.cfg.RedirectURI, state)
	if err != nil {
		return nil, err
	}
	defer waiter.Close()

	authURL := a.oauthConfig(scopes).AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("code_challenge", codes.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	a.d.AuthURLReady(authURL, time.Now().Add(a.cfg.AuthTimeout))
	if err := a.openURL(authURL); err != nil {
		// Non-fatal: the URL was surfaced for manual opening.
		a.d.BrowserOpenFailed(err)
	}

	a.d.WaitingForRedirect()
	code, err := waiter.awaitRedirect(ctx, a.cfg.AuthTimeout)
	if err != nil {
		return nil, err
	}
	a.d.CodeReceived()

	a.d.Exchanging()
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", a.cfg.RedirectURI)
	form.Set("code_verifier", codes.Verifier)

	ts, err := a.exchange(ctx, "authorization_code", form, nil, scopes)
	if err != nil {
		return nil, err
	}

	a.d.AuthSuccess()
	a.persist(ts)
	return ts, nil
}

// refresh performs one refresh exchange and persists the result.
func (a *Authenticator) refresh(ctx context.Context, prev *TokenSet) (*TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", prev.RefreshToken)
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)

	ts, err := a.exchange(ctx, "refresh_token", form, prev, nil)
	if err != nil {
		return nil, err
	}

	a.persist(ts)
	return ts, nil
}

// exchange POSTs a grant to the token endpoint and shapes the response
// into a TokenSet. prev supplies the refresh token and scopes to retain
// when the server omits them; fallbackScopes covers a first exchange whose
// response carries no scope field.
func (a *Authenticator) exchange(
	ctx context.Context,
	grantType string,
	form url.Values,
	prev *TokenSet,
	fallbackScopes []string,
) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		a.cfg.TokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", grantType, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", grantType, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", grantType, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ExchangeError{
			GrantType:  grantType,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", grantType, err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%s response missing access_token", grantType)
	}

	// No expires_in means no known lifetime: record the token as already
	// expired so the next call refreshes instead of trusting a guess.
	expiresAt := time.Now().Unix()
	if tokenResp.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second).Unix()
	}

	scopes := strings.Fields(tokenResp.Scope)
	if len(scopes) == 0 {
		if prev != nil {
			scopes = prev.Scopes
		} else {
			scopes = fallbackScopes
		}
	}

	// Servers running without rotation omit the refresh token; keep the
	// previous one rather than dropping it.
	refreshToken := tokenResp.RefreshToken
	if refreshToken == "" && prev != nil {
		refreshToken = prev.RefreshToken
	}

	return &TokenSet{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Scopes:       scopes,
	}, nil
}

// persist writes the TokenSet through the store. A save failure is
// reported but does not fail the flow: the token in hand is still usable.
func (a *Authenticator) persist(ts *TokenSet) {
	if err := a.store.Save(ts); err != nil {
		a.d.TokenSaveFailed(err)
		return
	}
	// Only the file store has a user-meaningful destination path; other
	// stores report an empty path rather than a file nothing wrote to.
	var path string
	if fs, ok := a.store.(*FileStore); ok {
		path = fs.Path
	}
	a.d.TokenSaved(path)
}

func (a *Authenticator) oauthConfig(scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		RedirectURL:  a.cfg.RedirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  a.cfg.AuthURL,
			TokenURL: a.cfg.TokenURL,
		},
	}
}

// missingScopes returns the requested scopes not present in granted.
func missingScopes(granted, requested []string) []string {
	have := make(map[string]bool, len(granted))
	for _, s := range granted {
		have[s] = true
	}
	var missing []string
	for _, s := range requested {
		if !have[s] {
			missing = append(missing, s)
		}
	}
	return missing
}

// unionScopes merges two scope lists, preserving order and dropping
// duplicates.
func unionScopes(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
