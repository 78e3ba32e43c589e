package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all output from the OAuth flow.
type Displayer interface {
	Banner()
	TokensFound()
	TokenValid()
	TokenExpired()
	TokensNotFound()
	InsufficientScopes(missing []string)
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	AuthURLReady(url string, deadline time.Time)
	BrowserOpenFailed(err error)
	WaitingForRedirect()
	CodeReceived()
	Exchanging()
	AuthSuccess()
	TokenSaved(path string)
	TokenSaveFailed(err error)
	AccessTokenRejected()
	ReAuthRequired()
	RetryingCall()
	Done(preview string, expiresIn time.Duration)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprintln(p.w, "=== Kick Authorization (OAuth2 + PKCE) ===")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) TokensFound() {
	fmt.Fprintln(p.w, "Found existing tokens!")
}

func (p *PlainDisplayer) TokenValid() {
	fmt.Fprintln(p.w, "Access token is still valid, using it...")
}

func (p *PlainDisplayer) TokenExpired() {
	fmt.Fprintln(p.w, "Access token expired, refreshing...")
}

func (p *PlainDisplayer) TokensNotFound() {
	fmt.Fprintln(p.w, "No existing tokens found, starting browser authorization...")
}

func (p *PlainDisplayer) InsufficientScopes(missing []string) {
	fmt.Fprintf(p.w, "Stored token is missing scopes (%s), re-authorizing...\n",
		strings.Join(missing, " "))
}

func (p *PlainDisplayer) Refreshing() {
	fmt.Fprintln(p.w, "Refreshing access token...")
}

func (p *PlainDisplayer) RefreshOK() {
	fmt.Fprintln(p.w, "Token refreshed successfully!")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
	fmt.Fprintln(p.w, "Starting browser authorization...")
}

func (p *PlainDisplayer) AuthURLReady(url string, deadline time.Time) {
	fmt.Fprintln(p.w, "----------------------------------------")
	fmt.Fprintln(p.w, "Opening Kick login in your browser.")
	fmt.Fprintf(p.w, "If it doesn't open automatically, copy this URL:\n%s\n", url)
	fmt.Fprintln(p.w, "----------------------------------------")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) BrowserOpenFailed(err error) {
	fmt.Fprintf(p.w, "Could not open browser automatically: %v\n", err)
	fmt.Fprintln(p.w, "Please open the URL above manually.")
}

func (p *PlainDisplayer) WaitingForRedirect() {
	fmt.Fprintln(p.w, "Waiting for you to authorize...")
}

func (p *PlainDisplayer) CodeReceived() {
	fmt.Fprintln(p.w, "Code received, exchanging for token...")
}

func (p *PlainDisplayer) Exchanging() {
	fmt.Fprintln(p.w, "Exchanging authorization code...")
}

func (p *PlainDisplayer) AuthSuccess() {
	fmt.Fprintln(p.w, "\nAuthorization successful!")
}

func (p *PlainDisplayer) TokenSaved(path string) {
	if path == "" {
		fmt.Fprintln(p.w, "Tokens saved")
		return
	}
	fmt.Fprintf(p.w, "Tokens saved to %s\n", path)
}

func (p *PlainDisplayer) TokenSaveFailed(err error) {
	fmt.Fprintf(p.w, "Warning: Failed to save tokens: %v\n", err)
}

func (p *PlainDisplayer) AccessTokenRejected() {
	fmt.Fprintln(p.w, "Access token rejected (401), re-authenticating...")
}

func (p *PlainDisplayer) ReAuthRequired() {
	fmt.Fprintln(p.w, "Re-authorization required...")
}

func (p *PlainDisplayer) RetryingCall() {
	fmt.Fprintln(p.w, "Re-authorized, retrying API call...")
}

func (p *PlainDisplayer) Done(preview string, expiresIn time.Duration) {
	fmt.Fprintln(p.w, "\n========================================")
	fmt.Fprintln(p.w, "Current Token Info:")
	fmt.Fprintf(p.w, "Access Token: %s...\n", preview)
	fmt.Fprintf(p.w, "Expires In: %s\n", expiresIn.Round(time.Second))
	fmt.Fprintln(p.w, "========================================")
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer discards all events. It is the default for library
// embedders and is used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                            {}
func (NoopDisplayer) TokensFound()                       {}
func (NoopDisplayer) TokenValid()                        {}
func (NoopDisplayer) TokenExpired()                      {}
func (NoopDisplayer) TokensNotFound()                    {}
func (NoopDisplayer) InsufficientScopes(_ []string)      {}
func (NoopDisplayer) Refreshing()                        {}
func (NoopDisplayer) RefreshOK()                         {}
func (NoopDisplayer) RefreshFailed(_ error)              {}
func (NoopDisplayer) AuthURLReady(_ string, _ time.Time) {}
func (NoopDisplayer) BrowserOpenFailed(_ error)          {}
func (NoopDisplayer) WaitingForRedirect()                {}
func (NoopDisplayer) CodeReceived()                      {}
func (NoopDisplayer) Exchanging()                        {}
func (NoopDisplayer) AuthSuccess()                       {}
func (NoopDisplayer) TokenSaved(_ string)                {}
func (NoopDisplayer) TokenSaveFailed(_ error)            {}
func (NoopDisplayer) AccessTokenRejected()               {}
func (NoopDisplayer) ReAuthRequired()                    {}
func (NoopDisplayer) RetryingCall()                      {}
func (NoopDisplayer) Done(_ string, _ time.Duration)     {}
func (NoopDisplayer) Fatal(_ error)                      {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) TokensFound() {
	t.p.Send(MsgTokensFound{})
}

func (t *ProgramDisplayer) TokenValid() {
	t.p.Send(MsgTokenValid{})
}

func (t *ProgramDisplayer) TokenExpired() {
	t.p.Send(MsgTokenExpired{})
}

func (t *ProgramDisplayer) TokensNotFound() {
	t.p.Send(MsgTokensNotFound{})
}

func (t *ProgramDisplayer) InsufficientScopes(missing []string) {
	t.p.Send(MsgInsufficientScopes{Missing: missing})
}

func (t *ProgramDisplayer) Refreshing() {
	t.p.Send(MsgRefreshing{})
}

func (t *ProgramDisplayer) RefreshOK() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) AuthURLReady(url string, deadline time.Time) {
	t.p.Send(MsgAuthURLReady{URL: url, Deadline: deadline})
}

func (t *ProgramDisplayer) BrowserOpenFailed(err error) {
	t.p.Send(MsgBrowserOpenFailed{Err: err})
}

func (t *ProgramDisplayer) WaitingForRedirect() {
	t.p.Send(MsgWaitingForRedirect{})
}

func (t *ProgramDisplayer) CodeReceived() {
	t.p.Send(MsgCodeReceived{})
}

func (t *ProgramDisplayer) Exchanging() {
	t.p.Send(MsgExchanging{})
}

func (t *ProgramDisplayer) AuthSuccess() {
	t.p.Send(MsgAuthSuccess{})
}

func (t *ProgramDisplayer) TokenSaved(path string) {
	t.p.Send(MsgTokenSaved{Path: path})
}

func (t *ProgramDisplayer) TokenSaveFailed(err error) {
	t.p.Send(MsgTokenSaveFailed{Err: err})
}

func (t *ProgramDisplayer) AccessTokenRejected() {
	t.p.Send(MsgAccessTokenRejected{})
}

func (t *ProgramDisplayer) ReAuthRequired() {
	t.p.Send(MsgReAuthRequired{})
}

func (t *ProgramDisplayer) RetryingCall() {
	t.p.Send(MsgRetryingCall{})
}

func (t *ProgramDisplayer) Done(preview string, expiresIn time.Duration) {
	t.p.Send(MsgDone{Preview: preview, ExpiresIn: expiresIn})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
