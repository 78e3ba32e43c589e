package kick

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	callbackSuccessHTML = `<!doctype html><html><head><meta charset="utf-8"><title>Authorization complete</title></head>` +
		`<body><h2>Success! You can close this tab now.</h2></body></html>`
	callbackFailureHTML = `<!doctype html><html><head><meta charset="utf-8"><title>Authorization failed</title></head>` +
		`<body><h2>Authorization failed. You can close this tab and return to the terminal.</h2></body></html>`
)

// redirectWaiter captures the authorization redirect for one flow. Tests
// substitute a fake that delivers a canned code without opening a socket.
type redirectWaiter interface {
	awaitRedirect(ctx context.Context, timeout time.Duration) (string, error)
	Close() error
}

type redirectResult struct {
	code string
	err  error
}

// redirectListener is a single-request HTTP listener bound to the host and
// port of the configured redirect URI. It lives for exactly one
// authorization attempt and is torn down on every exit path.
type redirectListener struct {
	expectedState string
	ln            net.Listener
	srv           *http.Server
	results       chan redirectResult
}

// newRedirectListener binds the listener immediately, so a redirect
// arriving between browser launch and awaitRedirect is not lost. A busy
// port surfaces as an error here rather than as a silent collision.
func newRedirectListener(redirectURI, expectedState string) (*redirectListener, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Port() == "" {
		return nil, fmt.Errorf("redirect URI %q must include an explicit port", redirectURI)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to bind redirect listener on %s: %w", u.Host, err)
	}

	l := &redirectListener{
		expectedState: expectedState,
		ln:            ln,
		results:       make(chan redirectResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleCallback)
	l.srv = &http.Server{Handler: mux}
	go func() { _ = l.srv.Serve(ln) }()

	return l, nil
}

func (l *redirectListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		l.respond(w, http.StatusBadRequest, callbackFailureHTML)
		l.deliver(redirectResult{err: &AuthorizationError{
			Code:        errCode,
			Description: q.Get("error_description"),
		}})
		return
	}

	if q.Get("state") != l.expectedState {
		l.respond(w, http.StatusBadRequest, callbackFailureHTML)
		l.deliver(redirectResult{err: ErrStateMismatch})
		return
	}

	code := q.Get("code")
	if code == "" {
		l.respond(w, http.StatusBadRequest, callbackFailureHTML)
		l.deliver(redirectResult{err: fmt.Errorf("authorization redirect missing code")})
		return
	}

	l.respond(w, http.StatusOK, callbackSuccessHTML)
	l.deliver(redirectResult{code: code})
}

func (l *redirectListener) respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Connection", "close")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// deliver reports the first outcome; later requests only get the HTML page.
func (l *redirectListener) deliver(res redirectResult) {
	select {
	case l.results <- res:
	default:
	}
}

// awaitRedirect blocks until a redirect outcome, cancellation, or timeout.
func (l *redirectListener) awaitRedirect(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-l.results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", ErrAuthorizationTimeout
	}
}

// Close releases the socket. Safe to call after any awaitRedirect outcome.
func (l *redirectListener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.srv.Shutdown(ctx); err != nil {
		return l.srv.Close()
	}
	return nil
}
