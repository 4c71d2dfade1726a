// Package identity exchanges an access token for a bearer credential and
// the encrypted organization key, against the hosted identity endpoint.
package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"

	"github.com/ruachtech/secrets-sdk/internal/accesstoken"
	"github.com/ruachtech/secrets-sdk/internal/envelope"
	"github.com/ruachtech/secrets-sdk/internal/region"
	"github.com/ruachtech/secrets-sdk/internal/sdkerror"
	"github.com/ruachtech/secrets-sdk/internal/symkey"
)

// orgKeyLen is the required length of the decrypted encryptionKey field.
const orgKeyLen = 64

// Result is everything the auth-state layer needs from a successful
// identity exchange.
type Result struct {
	Bearer    string
	OrgKey    symkey.Key
	OrgID     string
	ExpiresAt time.Time
}

// Client POSTs client-credentials requests to the identity endpoint.
type Client struct {
	httpClient *http.Client
}

// New creates an identity Client using httpClient, or http.DefaultClient
// if nil.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// rawResponse is the identity endpoint's 200 JSON body.
type rawResponse struct {
	AccessToken      string `json:"access_token"`
	EncryptedPayload string `json:"encrypted_payload"`
}

// Exchange performs the full request + decrypt + JWT-extract flow for tok
// in the given region (spec §4.4).
func (c *Client) Exchange(ctx context.Context, reg region.Region, tok accesstoken.Token) (Result, error) {
	body := url.Values{
		"scope":         {"api.secrets"},
		"grant_type":    {"client_credentials"},
		"client_id":     {tok.AccessTokenID},
		"client_secret": {tok.ClientSecret},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.IdentityURL+"/connect/token", strings.NewReader(body))
	if err != nil {
		return Result{}, sdkerror.New(sdkerror.KindSendRequestError, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Device-Type", "21")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, sdkerror.New(sdkerror.KindSendRequestError, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, sdkerror.New(sdkerror.KindSendRequestError, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parsing below.
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return Result{}, sdkerror.New(sdkerror.KindUnauthorisedToken, nil).WithStatus(resp.StatusCode, string(respBody))
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, sdkerror.New(sdkerror.KindRateLimited, nil).WithStatus(resp.StatusCode, string(respBody))
	default:
		return Result{}, sdkerror.New(sdkerror.KindAPIError, nil).WithStatus(resp.StatusCode, string(respBody))
	}

	var raw rawResponse
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return Result{}, sdkerror.New(sdkerror.KindInvalidIdentityResponse, err)
	}
	if raw.AccessToken == "" || raw.EncryptedPayload == "" {
		return Result{}, sdkerror.New(sdkerror.KindInvalidIdentityResponse, nil)
	}

	return finalize(raw, tok.SeedKey)
}

// payloadJSON is the decrypted form of encrypted_payload.
type payloadJSON struct {
	EncryptionKey string `json:"encryptionKey"`
}

// claims is the minimal set of JWT fields this SDK consumes. The bearer is
// decoded without signature verification (spec §9): it is immediately
// presented back to the issuer over TLS, and the only fields used here are
// exp and organization.
type claims struct {
	Organization string `json:"organization"`
	jwt.RegisteredClaims
}

// finalize decrypts raw.EncryptedPayload under accessTokenKey, extracts
// the organization key, and decodes the bearer's exp/organization claims.
// Any failure along this path — malformed envelope, MAC mismatch, bad
// padding, bad JSON shape, missing JWT fields — collapses to the single
// KindInvalidIdentityResponse kind (spec §7): the access-token holder
// cannot usefully distinguish these causes and must simply re-request.
func finalize(raw rawResponse, accessTokenKey symkey.Key) (Result, error) {
	env, err := envelope.Parse(raw.EncryptedPayload)
	if err != nil {
		return Result{}, sdkerror.New(sdkerror.KindInvalidIdentityResponse, err)
	}

	plaintext, err := env.Decrypt(accessTokenKey)
	if err != nil {
		return Result{}, sdkerror.New(sdkerror.KindInvalidIdentityResponse, err)
	}

	var pj payloadJSON
	if err := json.Unmarshal(plaintext, &pj); err != nil {
		return Result{}, sdkerror.New(sdkerror.KindInvalidIdentityResponse, err)
	}

	orgKey, err := DecodeOrgKey(pj.EncryptionKey)
	if err != nil {
		return Result{}, sdkerror.New(sdkerror.KindInvalidIdentityResponse, err)
	}

	exp, orgID, err := DecodeBearerClaims(raw.AccessToken)
	if err != nil {
		return Result{}, sdkerror.New(sdkerror.KindInvalidIdentityResponse, err)
	}

	return Result{
		Bearer:    raw.AccessToken,
		OrgKey:    orgKey,
		OrgID:     orgID,
		ExpiresAt: exp,
	}, nil
}

// DecodeOrgKey base64-decodes and splits the encryptionKey field found in
// both the identity response payload and the on-disk state file.
func DecodeOrgKey(b64 string) (symkey.Key, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return symkey.Key{}, err
	}
	if len(raw) != orgKeyLen {
		return symkey.Key{}, errors.Errorf("organization key must be %d bytes, got %d", orgKeyLen, len(raw))
	}
	return symkey.New(raw)
}

// DecodeBearerClaims extracts exp/organization from a bearer JWT without
// verifying its signature (spec §9) — shared by the identity exchange and
// by authstate's state-file restore path, which must re-derive the same
// freshness/org-id facts from a cached bearer.
func DecodeBearerClaims(bearer string) (time.Time, string, error) {
	var cl claims
	if _, _, err := jwt.NewParser().ParseUnverified(bearer, &cl); err != nil {
		return time.Time{}, "", err
	}
	if cl.ExpiresAt == nil || cl.Organization == "" {
		return time.Time{}, "", errors.New("bearer is missing exp or organization claim")
	}
	return cl.ExpiresAt.Time, cl.Organization, nil
}
