package kick

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kick/kick/tui"
)

// memStore is an in-memory Store for flow tests.
type memStore struct {
	ts    *TokenSet
	saves int
}

func (m *memStore) Load() (*TokenSet, error) { return m.ts, nil }
func (m *memStore) Save(ts *TokenSet) error  { m.saves++; m.ts = ts; return nil }

// fakeWaiter delivers a canned redirect outcome without opening a socket.
type fakeWaiter struct {
	code   string
	err    error
	closed bool
}

func (f *fakeWaiter) awaitRedirect(_ context.Context, _ time.Duration) (string, error) {
	return f.code, f.err
}
func (f *fakeWaiter) Close() error { f.closed = true; return nil }

// newTestAuthenticator wires an Authenticator against the given token
// endpoint with the browser and listener stubbed out. The last
// authorization URL the "browser" saw is captured into authURL.
func newTestAuthenticator(
	t *testing.T,
	tokenURL string,
	store Store,
	waiter *fakeWaiter,
	authURL *string,
) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		TokenURL:     tokenURL,
		Store:        store,
		AuthTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("NewAuthenticator failed: %v", err)
	}
	a.newWaiter = func(_, _ string) (redirectWaiter, error) { return waiter, nil }
	a.openURL = func(u string) error {
		if authURL != nil {
			*authURL = u
		}
		return nil
	}
	return a
}

func tokenResponse(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func TestToken_ValidStoredTokenSkipsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to token endpoint: %s %s", r.Method, r.URL)
	}))
	defer server.Close()

	store := &memStore{ts: &TokenSet{
		AccessToken: "stored-access",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		Scopes:      []string{"user:read", "channel:read", "channel:write"},
	}}
	a := newTestAuthenticator(t, server.URL, store, &fakeWaiter{}, nil)

	token, err := a.Token(context.Background(), nil)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "stored-access" {
		t.Errorf("token = %q, want stored token", token)
	}
	if store.saves != 0 {
		t.Errorf("store was written %d times, want 0", store.saves)
	}
}

func TestToken_FullFlowPersistsAbsoluteExpiry(t *testing.T) {
	var sentVerifier string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm failed: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q, want authorization_code", got)
		}
		if got := r.PostForm.Get("code"); got != "auth-code-1" {
			t.Errorf("code = %q, want auth-code-1", got)
		}
		if got := r.PostForm.Get("redirect_uri"); got != DefaultRedirectURI {
			t.Errorf("redirect_uri = %q, want %q", got, DefaultRedirectURI)
		}
		sentVerifier = r.PostForm.Get("code_verifier")
		if sentVerifier == "" {
			t.Error("code_verifier missing from exchange")
		}
		tokenResponse(w, `{
			"access_token": "new-access",
			"refresh_token": "new-refresh",
			"token_type": "Bearer",
			"expires_in": 3600,
			"scope": "user:read"
		}`)
	}))
	defer server.Close()

	store := &memStore{}
	waiter := &fakeWaiter{code: "auth-code-1"}
	var authURL string
	a := newTestAuthenticator(t, server.URL, store, waiter, &authURL)

	before := time.Now()
	token, err := a.Token(context.Background(), []string{"user:read"})
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "new-access" {
		t.Errorf("token = %q, want new-access", token)
	}

	// The authorization URL must carry the S256 challenge for the verifier
	// that was later sent to the token endpoint.
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("authorization URL %q does not parse: %v", authURL, err)
	}
	q := u.Query()
	if got := q.Get("code_challenge_method"); got != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", got)
	}
	if got := q.Get("code_challenge"); got != challengeFromVerifier(sentVerifier) {
		t.Errorf("code_challenge = %q does not match the exchanged verifier", got)
	}
	if q.Get("state") == "" {
		t.Error("authorization URL missing state")
	}
	if got := q.Get("scope"); got != "user:read" {
		t.Errorf("scope = %q, want user:read", got)
	}

	// The persisted record stores an absolute expiry near now+3600s.
	if store.ts == nil {
		t.Fatal("nothing persisted after the flow")
	}
	wantMin := before.Add(3590 * time.Second).Unix()
	wantMax := time.Now().Add(3610 * time.Second).Unix()
	if store.ts.ExpiresAt < wantMin || store.ts.ExpiresAt > wantMax {
		t.Errorf("ExpiresAt = %d, want within [%d, %d]", store.ts.ExpiresAt, wantMin, wantMax)
	}
	if len(store.ts.Scopes) != 1 || store.ts.Scopes[0] != "user:read" {
		t.Errorf("Scopes = %v, want [user:read]", store.ts.Scopes)
	}
	if store.ts.RefreshToken != "new-refresh" {
		t.Errorf("RefreshToken = %q, want new-refresh", store.ts.RefreshToken)
	}
	if !waiter.closed {
		t.Error("listener was not closed after the flow")
	}
}

func TestToken_RefreshUpdatesStore(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm failed: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "refresh-1" {
			t.Errorf("refresh_token = %q, want refresh-1", got)
		}
		tokenResponse(w, `{
			"access_token": "access-2",
			"refresh_token": "refresh-2",
			"expires_in": 3600
		}`)
	}))
	defer server.Close()

	store := &memStore{ts: &TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
		Scopes:       []string{"user:read", "channel:read", "channel:write"},
	}}
	a := newTestAuthenticator(t, server.URL, store, &fakeWaiter{
		err: errors.New("full flow must not run"),
	}, nil)

	token, err := a.Token(context.Background(), nil)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "access-2" {
		t.Errorf("token = %q, want access-2", token)
	}
	if requests != 1 {
		t.Errorf("token endpoint hit %d times, want exactly 1", requests)
	}
	if store.ts.RefreshToken != "refresh-2" {
		t.Errorf("rotated refresh token not persisted, got %q", store.ts.RefreshToken)
	}
	if store.ts.AccessToken != "access-2" {
		t.Errorf("new access token not persisted, got %q", store.ts.AccessToken)
	}
}

func TestToken_RefreshKeepsOldRefreshTokenWhenOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenResponse(w, `{"access_token": "access-2", "expires_in": 3600}`)
	}))
	defer server.Close()

	store := &memStore{ts: &TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
		Scopes:       []string{"user:read", "channel:read", "channel:write"},
	}}
	a := newTestAuthenticator(t, server.URL, store, &fakeWaiter{}, nil)

	if _, err := a.Token(context.Background(), nil); err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if store.ts.RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q, want the previous refresh-1 preserved",
			store.ts.RefreshToken)
	}
	if len(store.ts.Scopes) != 3 {
		t.Errorf("Scopes = %v, want the previous scopes preserved", store.ts.Scopes)
	}
}

func TestToken_RefreshFailureFallsBackToFullFlow(t *testing.T) {
	var grants []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm failed: %v", err)
		}
		grant := r.PostForm.Get("grant_type")
		grants = append(grants, grant)
		if grant == "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error": "invalid_grant"}`)
			return
		}
		tokenResponse(w, `{"access_token": "flow-access", "refresh_token": "flow-refresh", "expires_in": 3600}`)
	}))
	defer server.Close()

	store := &memStore{ts: &TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
		Scopes:       []string{"user:read", "channel:read", "channel:write"},
	}}
	a := newTestAuthenticator(t, server.URL, store, &fakeWaiter{code: "auth-code-2"}, nil)

	token, err := a.Token(context.Background(), nil)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "flow-access" {
		t.Errorf("token = %q, want the full-flow token", token)
	}
	want := []string{"refresh_token", "authorization_code"}
	if len(grants) != 2 || grants[0] != want[0] || grants[1] != want[1] {
		t.Errorf("grants = %v, want %v", grants, want)
	}
}

func TestToken_InsufficientScopesForcesUnionReauth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenResponse(w, `{"access_token": "wide-access", "expires_in": 3600, "scope": "user:read channel:write"}`)
	}))
	defer server.Close()

	// Stored token is still valid but only covers user:read.
	store := &memStore{ts: &TokenSet{
		AccessToken: "narrow-access",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		Scopes:      []string{"user:read"},
	}}
	var authURL string
	a := newTestAuthenticator(t, server.URL, store, &fakeWaiter{code: "c"}, &authURL)

	token, err := a.Token(context.Background(), []string{"user:read", "channel:write"})
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "wide-access" {
		t.Errorf("token = %q, want a re-authorized token", token)
	}

	u, _ := url.Parse(authURL)
	scope := u.Query().Get("scope")
	if !strings.Contains(scope, "user:read") || !strings.Contains(scope, "channel:write") {
		t.Errorf("scope = %q, want the union of stored and requested scopes", scope)
	}
}

func TestToken_MissingExpiresInMeansAlreadyExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenResponse(w, `{"access_token": "a", "refresh_token": "r"}`)
	}))
	defer server.Close()

	store := &memStore{}
	a := newTestAuthenticator(t, server.URL, store, &fakeWaiter{code: "c"}, nil)

	if _, err := a.Token(context.Background(), nil); err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if store.ts == nil {
		t.Fatal("nothing persisted")
	}
	if store.ts.ExpiresAt > time.Now().Unix() {
		t.Errorf("ExpiresAt = %d is in the future; a response without expires_in must be recorded as expired",
			store.ts.ExpiresAt)
	}
}

func TestToken_ExchangeErrorCarriesServerDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "invalid_request"}`)
	}))
	defer server.Close()

	a := newTestAuthenticator(t, server.URL, &memStore{}, &fakeWaiter{code: "c"}, nil)

	_, err := a.Token(context.Background(), nil)
	var exErr *ExchangeError
	if !errors.As(err, &exErr) {
		t.Fatalf("error = %v, want *ExchangeError", err)
	}
	if exErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", exErr.StatusCode)
	}
	if exErr.GrantType != "authorization_code" {
		t.Errorf("GrantType = %q, want authorization_code", exErr.GrantType)
	}
	if !strings.Contains(exErr.Body, "invalid_request") {
		t.Errorf("Body = %q, want the server's error body", exErr.Body)
	}
}

func TestToken_DenialSurfacesAuthorizationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint must not be hit after a denial")
	}))
	defer server.Close()

	waiter := &fakeWaiter{err: &AuthorizationError{Code: "access_denied"}}
	a := newTestAuthenticator(t, server.URL, &memStore{}, waiter, nil)

	_, err := a.Token(context.Background(), nil)
	var authErr *AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *AuthorizationError", err)
	}
	if !waiter.closed {
		t.Error("listener must be closed on the denial path")
	}
}

func TestForceReauthorize_IgnoresValidStoredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenResponse(w, `{"access_token": "fresh", "expires_in": 3600}`)
	}))
	defer server.Close()

	store := &memStore{ts: &TokenSet{
		AccessToken: "stale-but-valid",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		Scopes:      []string{"user:read", "channel:read", "channel:write"},
	}}
	a := newTestAuthenticator(t, server.URL, store, &fakeWaiter{code: "c"}, nil)

	token, err := a.ForceReauthorize(context.Background(), nil)
	if err != nil {
		t.Fatalf("ForceReauthorize failed: %v", err)
	}
	if token != "fresh" {
		t.Errorf("token = %q, want the freshly authorized one", token)
	}
}

// blockingWaiter parks the flow inside awaitRedirect until released,
// signalling each arrival on entered.
type blockingWaiter struct {
	entered chan<- struct{}
	release <-chan struct{}
}

func (w *blockingWaiter) awaitRedirect(ctx context.Context, _ time.Duration) (string, error) {
	w.entered <- struct{}{}
	select {
	case <-w.release:
		return "auth-code-1", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
func (w *blockingWaiter) Close() error { return nil }

func TestToken_ConcurrentCallsShareOneFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenResponse(w, `{"access_token": "shared-access", "refresh_token": "r", "expires_in": 3600}`)
	}))
	defer server.Close()

	store := &memStore{}
	a := newTestAuthenticator(t, server.URL, store, &fakeWaiter{}, nil)

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	flows := 0 // only ever touched under the authenticator's mutex
	a.newWaiter = func(_, _ string) (redirectWaiter, error) {
		flows++
		return &blockingWaiter{entered: entered, release: release}, nil
	}

	var wg sync.WaitGroup
	tokens := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = a.Token(context.Background(), nil)
		}(i)
	}

	// One flow must be parked at its redirect; the other caller has to be
	// queued, not listening on the same port.
	<-entered
	select {
	case <-entered:
		t.Fatal("second flow armed while the first was still waiting")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("Token call %d failed: %v", i, errs[i])
		}
		if tokens[i] != "shared-access" {
			t.Errorf("token %d = %q, want shared-access", i, tokens[i])
		}
	}
	if flows != 1 {
		t.Errorf("authorization flows = %d, want 1 (second caller reuses the persisted token)", flows)
	}
	if store.saves != 1 {
		t.Errorf("store saves = %d, want 1", store.saves)
	}
}

// tokenSavedSpy records TokenSaved paths and discards everything else.
type tokenSavedSpy struct {
	tui.NoopDisplayer
	paths []string
}

func (s *tokenSavedSpy) TokenSaved(path string) { s.paths = append(s.paths, path) }

func TestPersist_ReportsOnlyTheFileStorePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	spy := &tokenSavedSpy{}
	a, err := NewAuthenticator(Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		TokenFile:    path,
		Display:      spy,
	})
	if err != nil {
		t.Fatalf("NewAuthenticator failed: %v", err)
	}
	a.persist(&TokenSet{AccessToken: "a"})
	if len(spy.paths) != 1 || spy.paths[0] != path {
		t.Errorf("TokenSaved paths = %v, want [%s]", spy.paths, path)
	}

	// A non-file store wrote to no file; reporting the default token file
	// path would name a file that was never touched.
	spy = &tokenSavedSpy{}
	a, err = NewAuthenticator(Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Store:        &memStore{},
		Display:      spy,
	})
	if err != nil {
		t.Fatalf("NewAuthenticator failed: %v", err)
	}
	a.persist(&TokenSet{AccessToken: "a"})
	if len(spy.paths) != 1 || spy.paths[0] != "" {
		t.Errorf("TokenSaved paths = %v, want one empty path", spy.paths)
	}
}

func TestMissingScopes(t *testing.T) {
	got := missingScopes([]string{"a", "b"}, []string{"b", "c", "d"})
	if len(got) != 2 || got[0] != "c" || got[1] != "d" {
		t.Errorf("missingScopes = %v, want [c d]", got)
	}
	if got := missingScopes([]string{"a"}, []string{"a"}); got != nil {
		t.Errorf("missingScopes of covered set = %v, want nil", got)
	}
}

func TestUnionScopes(t *testing.T) {
	got := unionScopes([]string{"a", "b"}, []string{"b", "c"})
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("unionScopes = %v, want [a b c]", got)
	}
}
