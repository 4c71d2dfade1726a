// Package client is the public surface of the secrets SDK: construct a
// Client from an access token and region, then call GetByID/Sync/Create.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/ruachtech/secrets-sdk/internal/accesstoken"
	"github.com/ruachtech/secrets-sdk/internal/authstate"
	"github.com/ruachtech/secrets-sdk/internal/region"
	"github.com/ruachtech/secrets-sdk/internal/restclient"
	"github.com/ruachtech/secrets-sdk/internal/sdkerror"
)

// Secret is a decrypted secret returned by the Client.
type Secret = restclient.Secret

// Client is the SDK entry point. Construct one with New.
type Client struct {
	auth *authstate.State
	rest *restclient.Client
}

// options collects the functional options applied by New.
type options struct {
	stateFile        string
	httpClient       *http.Client
	strictTokenShape bool
}

// Option configures New.
type Option func(*options)

// WithStateFile enables on-disk persistence of the bearer/org-key state at
// path, so a later process can skip the identity round trip entirely when
// the cached state is still fresh (spec §4.5).
func WithStateFile(path string) Option {
	return func(o *options) { o.stateFile = path }
}

// WithHTTPClient overrides the http.Client used for both the identity and
// REST requests. Defaults to http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// StrictTokenShape opts into validating that the token's access_token_id
// parses as a UUID, rejecting obviously malformed IDs before any network
// call (spec §4.3).
func StrictTokenShape(strict bool) Option {
	return func(o *options) { o.strictTokenShape = strict }
}

// New bootstraps a Client from a raw access token string and region,
// restoring persisted state when available and otherwise exchanging the
// token with the identity endpoint (spec §4.5).
func New(ctx context.Context, tokenStr string, reg region.Region, opts ...Option) (*Client, error) {
	if err := region.Validate(reg); err != nil {
		return nil, sdkerror.New(sdkerror.KindInvalidArgument, err)
	}

	var o options
	for _, apply := range opts {
		apply(&o)
	}

	if o.strictTokenShape {
		tok, err := accesstoken.Parse(tokenStr)
		if err != nil {
			return nil, err
		}
		if err := accesstoken.ValidateIDShape(tok.AccessTokenID); err != nil {
			return nil, err
		}
	}

	auth, err := authstate.FromToken(ctx, tokenStr, reg, o.stateFile, o.httpClient)
	if err != nil {
		return nil, err
	}

	return &Client{
		auth: auth,
		rest: restclient.New(auth, o.httpClient),
	}, nil
}

// GetByID retrieves and decrypts a single secret by ID.
func (c *Client) GetByID(ctx context.Context, id string) (Secret, error) {
	return c.rest.GetByID(ctx, id)
}

// Sync retrieves every secret changed since lastSynced.
func (c *Client) Sync(ctx context.Context, lastSynced time.Time) ([]Secret, error) {
	return c.rest.Sync(ctx, lastSynced)
}

// CreateRequest describes a new secret to create.
type CreateRequest = restclient.CreateRequest

// Create encrypts and submits a new secret.
func (c *Client) Create(ctx context.Context, req CreateRequest) (Secret, error) {
	return c.rest.Create(ctx, req)
}

// Close releases resources held by the Client. The current transport does
// not require explicit teardown; Close exists so callers can defer it
// without caring whether a future transport does.
func (c *Client) Close() error {
	return nil
}
