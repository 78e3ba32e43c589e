package tui

import (
	"time"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgTokensFound signals that existing tokens were found on disk.
type MsgTokensFound struct{}

// MsgTokenValid signals that the existing access token is still valid.
type MsgTokenValid struct{}

// MsgTokenExpired signals that the access token has expired.
type MsgTokenExpired struct{}

// MsgTokensNotFound signals that no tokens were found (starting fresh).
type MsgTokensNotFound struct{}

// MsgInsufficientScopes signals that the stored token lacks requested scopes.
type MsgInsufficientScopes struct{ Missing []string }

// MsgRefreshing signals that a token refresh is in progress.
type MsgRefreshing struct{}

// MsgRefreshOK signals that the token was refreshed successfully.
type MsgRefreshOK struct{}

// MsgRefreshFailed signals that token refresh failed.
type MsgRefreshFailed struct{ Err error }

// MsgAuthURLReady signals that the authorization URL is ready for user action.
type MsgAuthURLReady struct {
	URL      string
	Deadline time.Time
}

// MsgBrowserOpenFailed signals that the browser could not be opened.
type MsgBrowserOpenFailed struct{ Err error }

// MsgWaitingForRedirect signals that the local listener is waiting for the
// browser redirect.
type MsgWaitingForRedirect struct{}

// MsgCodeReceived signals that the authorization code arrived.
type MsgCodeReceived struct{}

// MsgExchanging signals that the code is being exchanged for tokens.
type MsgExchanging struct{}

// MsgAuthSuccess signals that the user authorized successfully.
type MsgAuthSuccess struct{}

// MsgTokenSaved signals that tokens were saved to disk.
type MsgTokenSaved struct{ Path string }

// MsgTokenSaveFailed signals that saving tokens failed.
type MsgTokenSaveFailed struct{ Err error }

// MsgAccessTokenRejected signals that the access token was rejected (401).
type MsgAccessTokenRejected struct{}

// MsgReAuthRequired signals that a full re-authorization is starting.
type MsgReAuthRequired struct{}

// MsgRetryingCall signals that the API call is being retried after re-auth.
type MsgRetryingCall struct{}

// MsgDone signals successful completion of the OAuth flow.
type MsgDone struct {
	Preview   string
	ExpiresIn time.Duration
}

// MsgFatal signals a fatal error that should terminate the flow.
type MsgFatal struct{ Err error }
