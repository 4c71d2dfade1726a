// Package restclient is the thin REST collaborator: it issues the
// list/read/create secret calls and envelope-decrypts/encrypts the key,
// value, and note fields of every secret it handles.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ruachtech/secrets-sdk/internal/authstate"
	"github.com/ruachtech/secrets-sdk/internal/envelope"
	"github.com/ruachtech/secrets-sdk/internal/sdkerror"
	"github.com/ruachtech/secrets-sdk/internal/symkey"
)

// maxConcurrentDecrypts bounds the sync() fan-out (SPEC_FULL.md §4.6.2).
const maxConcurrentDecrypts = 8

// Secret is a decrypted secret as returned to callers.
type Secret struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	ProjectID      string    `json:"projectId,omitempty"`
	Key            string    `json:"key"`
	Value          string    `json:"value"`
	Note           string    `json:"note,omitempty"`
	CreationDate   time.Time `json:"creationDate"`
	RevisionDate   time.Time `json:"revisionDate"`
}

// wireSecret is the on-the-wire shape before/after envelope processing:
// Key/Value/Note are envelope strings, not plaintext.
type wireSecret struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	ProjectID      string    `json:"projectId,omitempty"`
	Key            string    `json:"key"`
	Value          string    `json:"value"`
	Note           string    `json:"note,omitempty"`
	CreationDate   time.Time `json:"creationDate"`
	RevisionDate   time.Time `json:"revisionDate"`
}

// Client is the REST adapter described in spec §4.6.
type Client struct {
	httpClient *http.Client
	auth       *authstate.State
}

// New creates a REST adapter bound to auth. httpClient defaults to
// http.DefaultClient if nil.
func New(auth *authstate.State, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, auth: auth}
}

// GetByID retrieves and decrypts a single secret.
func (c *Client) GetByID(ctx context.Context, id string) (Secret, error) {
	if id == "" {
		return Secret{}, sdkerror.New(sdkerror.KindInvalidArgument, nil)
	}
	if err := c.auth.ReloadIfNeeded(ctx); err != nil {
		return Secret{}, err
	}

	url := fmt.Sprintf("%s/secrets/%s", c.auth.Region.APIURL, id)
	var ws wireSecret
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &ws); err != nil {
		return Secret{}, err
	}
	return decryptSecret(ws, c.auth.OrgEncKey)
}

// syncResponse is the sync endpoint's envelope around the secrets list.
type syncResponse struct {
	HasChanges bool         `json:"hasChanges"`
	Secrets    []wireSecret `json:"secrets"`
}

// Sync retrieves every secret changed since lastSynced and decrypts them
// concurrently, bounded by maxConcurrentDecrypts (SPEC_FULL.md §4.6.2).
func (c *Client) Sync(ctx context.Context, lastSynced time.Time) ([]Secret, error) {
	if err := c.auth.ReloadIfNeeded(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/secrets/sync?lastSyncedDate=%s",
		c.auth.Region.APIURL, lastSynced.UTC().Format(time.RFC3339))

	var resp syncResponse
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.HasChanges || len(resp.Secrets) == 0 {
		return nil, nil
	}

	secrets := make([]Secret, len(resp.Secrets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDecrypts)
	for i, ws := range resp.Secrets {
		i, ws := i, ws
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			s, err := decryptSecret(ws, c.auth.OrgEncKey)
			if err != nil {
				return err
			}
			secrets[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return secrets, nil
}

// CreateRequest describes a new secret to create.
type CreateRequest struct {
	Key        string
	Value      string
	Note       string
	ProjectIDs []string
}

// createBody is the wire shape for the create request: Key/Value/Note are
// encrypted before being sent.
type createBody struct {
	Key        string   `json:"key"`
	Value      string   `json:"value"`
	Note       string   `json:"note,omitempty"`
	ProjectIDs []string `json:"projectIds"`
}

// Create encrypts and submits a new secret, returning the decrypted
// created secret as the server echoes it back.
func (c *Client) Create(ctx context.Context, req CreateRequest) (Secret, error) {
	if req.Key == "" {
		return Secret{}, sdkerror.New(sdkerror.KindInvalidArgument, nil)
	}
	for _, id := range req.ProjectIDs {
		if id == "" {
			return Secret{}, sdkerror.New(sdkerror.KindInvalidArgument, nil)
		}
	}
	if err := c.auth.ReloadIfNeeded(ctx); err != nil {
		return Secret{}, err
	}

	key, err := encryptField(req.Key, c.auth.OrgEncKey)
	if err != nil {
		return Secret{}, err
	}
	value, err := encryptField(req.Value, c.auth.OrgEncKey)
	if err != nil {
		return Secret{}, err
	}
	var note string
	if req.Note != "" {
		note, err = encryptField(req.Note, c.auth.OrgEncKey)
		if err != nil {
			return Secret{}, err
		}
	}

	body := createBody{Key: key, Value: value, Note: note, ProjectIDs: req.ProjectIDs}
	payload, err := json.Marshal(body)
	if err != nil {
		return Secret{}, sdkerror.New(sdkerror.KindInvalidArgument, err)
	}

	url := fmt.Sprintf("%s/organizations/%s/secrets", c.auth.Region.APIURL, c.auth.OrgID)
	var ws wireSecret
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &ws); err != nil {
		return Secret{}, err
	}
	return decryptSecret(ws, c.auth.OrgEncKey)
}

// doJSON issues an HTTP request with the bearer header, maps the status
// code per spec §6, and decodes a 200 body into out.
func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return sdkerror.New(sdkerror.KindSendRequestError, err)
	}
	req.Header.Set("Authorization", c.auth.BearerHeader())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Device-Type", "21")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sdkerror.New(sdkerror.KindSendRequestError, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return sdkerror.New(sdkerror.KindSendRequestError, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through
	case http.StatusUnauthorized:
		return sdkerror.New(sdkerror.KindUnauthorised, nil).WithStatus(resp.StatusCode, string(respBody))
	case http.StatusNotFound:
		return sdkerror.New(sdkerror.KindNotFound, nil).WithStatus(resp.StatusCode, string(respBody))
	case http.StatusTooManyRequests:
		return sdkerror.New(sdkerror.KindRateLimited, nil).WithStatus(resp.StatusCode, string(respBody))
	default:
		return sdkerror.New(sdkerror.KindAPIError, nil).WithStatus(resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return sdkerror.New(sdkerror.KindAPIError, err)
	}
	return nil
}

// decryptSecret envelope-decrypts key/value and, when present, note.
func decryptSecret(ws wireSecret, orgKey symkey.Key) (Secret, error) {
	key, err := decryptField(ws.Key, orgKey)
	if err != nil {
		return Secret{}, err
	}
	value, err := decryptField(ws.Value, orgKey)
	if err != nil {
		return Secret{}, err
	}
	var note string
	if ws.Note != "" {
		note, err = decryptField(ws.Note, orgKey)
		if err != nil {
			return Secret{}, err
		}
	}

	return Secret{
		ID:             ws.ID,
		OrganizationID: ws.OrganizationID,
		ProjectID:      ws.ProjectID,
		Key:            key,
		Value:          value,
		Note:           note,
		CreationDate:   ws.CreationDate,
		RevisionDate:   ws.RevisionDate,
	}, nil
}

func decryptField(envStr string, key symkey.Key) (string, error) {
	env, err := envelope.Parse(envStr)
	if err != nil {
		return "", sdkerror.New(sdkerror.KindSecretParseError, err)
	}
	plaintext, err := env.Decrypt(key)
	if err != nil {
		return "", sdkerror.New(sdkerror.KindSecretParseError, err)
	}
	return string(plaintext), nil
}

func encryptField(plaintext string, key symkey.Key) (string, error) {
	env, err := envelope.Encrypt(key, []byte(plaintext))
	if err != nil {
		return "", sdkerror.New(sdkerror.KindSecretParseError, err)
	}
	return env.Serialize(), nil
}
