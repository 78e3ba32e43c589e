package kick

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-kick/kick/tui"
)

// Client calls the Kick public API with tokens obtained through its
// Authenticator. Every method may trigger a refresh or a full browser
// authorization before the request goes out.
type Client struct {
	auth   *Authenticator
	http   *http.Client
	base   string
	d      tui.Displayer
	scopes []string
}

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	auth, err := NewAuthenticator(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		auth:   auth,
		http:   auth.http,
		base:   auth.cfg.APIBaseURL,
		d:      auth.d,
		scopes: auth.cfg.Scopes,
	}, nil
}

// Authenticator exposes the client's token manager, for callers that want
// to pre-authenticate (e.g. a login command) without making an API call.
func (c *Client) Authenticator() *Authenticator {
	return c.auth
}

// GetUser fetches the authenticated user's own record.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var env dataEnvelope[User]
	if err := c.do(ctx, http.MethodGet, "/public/v1/users", nil, nil, &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("users response contained no data")
	}
	return &env.Data[0], nil
}

// GetChannel fetches the broadcaster's own channel record. Some accounts
// return an empty list from the bare channels endpoint; for those the
// lookup is retried with an explicit broadcaster_user_id taken from the
// users endpoint.
func (c *Client) GetChannel(ctx context.Context) (*Channel, error) {
	var env dataEnvelope[Channel]
	if err := c.do(ctx, http.MethodGet, "/public/v1/channels", nil, nil, &env); err != nil {
		return nil, err
	}
	if len(env.Data) > 0 {
		return &env.Data[0], nil
	}

	user, err := c.GetUser(ctx)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("broadcaster_user_id", strconv.FormatInt(user.UserID, 10))

	env = dataEnvelope[Channel]{}
	if err := c.do(ctx, http.MethodGet, "/public/v1/channels", query, nil, &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("channels response contained no data")
	}
	return &env.Data[0], nil
}

// UpdateChannel applies the non-nil fields of update to the broadcaster's
// channel. An update with nothing set is rejected locally.
func (c *Client) UpdateChannel(ctx context.Context, update ChannelUpdate) error {
	if update.StreamTitle == nil && update.CategoryID == nil && update.CustomTags == nil {
		return errors.New("no channel updates provided")
	}
	return c.do(ctx, http.MethodPatch, "/public/v1/channels", nil, update, nil)
}

// do performs one authenticated API request. A 401 triggers exactly one
// full re-authorization and one retry; a second 401 means the credentials
// themselves are bad and surfaces as ErrAuthenticationFailed.
func (c *Client) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	payload, out any,
) error {
	token, err := c.auth.Token(ctx, c.scopes)
	if err != nil {
		return err
	}

	status, body, err := c.send(ctx, method, path, query, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		c.d.AccessTokenRejected()
		token, err = c.auth.ForceReauthorize(ctx, c.scopes)
		if err != nil {
			return err
		}
		c.d.RetryingCall()
		status, body, err = c.send(ctx, method, path, query, payload, token)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return fmt.Errorf("%w: request still unauthorized after re-authorization",
				ErrAuthenticationFailed)
		}
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return &APIError{StatusCode: status, Body: string(body)}
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse API response: %w", err)
		}
	}
	return nil
}

// send issues a single HTTP request with the bearer token and returns the
// status and full body. Transport failures are errors; HTTP error statuses
// are the caller's to interpret.
func (c *Client) send(
	ctx context.Context,
	method, path string,
	query url.Values,
	payload any,
	token string,
) (int, []byte, error) {
	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read API response: %w", err)
	}
	return resp.StatusCode, body, nil
}
