// Package authstate orchestrates the bootstrap-from-token, state-file
// restore/persist, and freshness/refresh logic that produces the bearer
// header and organization key consumed by the REST adapter.
package authstate

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ruachtech/secrets-sdk/internal/accesstoken"
	"github.com/ruachtech/secrets-sdk/internal/envelope"
	"github.com/ruachtech/secrets-sdk/internal/identity"
	"github.com/ruachtech/secrets-sdk/internal/region"
	"github.com/ruachtech/secrets-sdk/internal/sdkerror"
	"github.com/ruachtech/secrets-sdk/internal/symkey"
)

// skew is the safety margin subtracted from the JWT exp when deciding
// whether the current bearer is still fresh (spec §4.5).
const skew = 30 * time.Second

// State holds everything the REST adapter needs: the bearer header value
// and the organization encryption key, kept in sync with the identity
// endpoint's token lifetime.
type State struct {
	Region    region.Region
	Token     accesstoken.Token
	StateFile string // empty if no on-disk persistence was requested

	Bearer    string
	OrgID     string
	OrgEncKey symkey.Key
	ExpiresAt time.Time

	identityClient *identity.Client
}

// stateFileDoc is the decrypted JSON stored in (and recovered from) the
// state file's envelope: {"encryptionKey": base64(orgEncKey)}.
type stateFileDoc struct {
	EncryptionKey string `json:"encryptionKey"`
}

// FromToken bootstraps a State from a token string (spec §4.5):
//  1. parse the token
//  2. if stateFile is set, non-empty, and restorable, use it
//  3. otherwise request fresh credentials from the identity endpoint and,
//     if stateFile is set, persist them
func FromToken(ctx context.Context, tokenStr string, reg region.Region, stateFile string, httpClient *http.Client) (*State, error) {
	tok, err := accesstoken.Parse(tokenStr)
	if err != nil {
		return nil, err
	}

	s := &State{
		Region:         reg,
		Token:          tok,
		StateFile:      stateFile,
		identityClient: identity.New(httpClient),
	}

	if stateFile != "" {
		if info, statErr := os.Stat(stateFile); statErr == nil && info.Size() > 0 {
			if restoreErr := s.restore(stateFile); restoreErr == nil {
				return s, nil
			}
			// Fall through to a fresh identity request: the state file is
			// advisory cache, not authority (spec §4.5).
		}
	}

	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	if stateFile != "" {
		if err := s.persist(stateFile); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// restore loads bearer/org-key state from the state file. On any
// parse/decrypt failure it returns a non-nil error (KindInvalidStateFile),
// which the caller treats as a cache miss rather than a propagated error
// (spec §4.5, §7).
func (s *State) restore(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sdkerror.New(sdkerror.KindInvalidStateFile, err)
	}

	// The state file stores <envelope-3-parts>|<bearer>, and the envelope
	// itself contains two "|" separators, so the file has exactly three.
	// Split on the LAST "|" to recover the bearer tail without disturbing
	// the envelope's own separators (spec §4.5, §9).
	idx := strings.LastIndex(string(raw), "|")
	if idx < 0 {
		return sdkerror.New(sdkerror.KindInvalidStateFile, nil)
	}
	envStr, bearer := string(raw)[:idx], string(raw)[idx+1:]
	if bearer == "" {
		return sdkerror.New(sdkerror.KindInvalidStateFile, nil)
	}

	env, err := envelope.Parse(envStr)
	if err != nil {
		return sdkerror.New(sdkerror.KindInvalidStateFile, err)
	}

	plaintext, err := env.Decrypt(s.Token.SeedKey)
	if err != nil {
		return sdkerror.New(sdkerror.KindInvalidStateFile, err)
	}

	var doc stateFileDoc
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return sdkerror.New(sdkerror.KindInvalidStateFile, err)
	}

	orgKey, err := identity.DecodeOrgKey(doc.EncryptionKey)
	if err != nil {
		return sdkerror.New(sdkerror.KindInvalidStateFile, err)
	}

	exp, orgID, err := identity.DecodeBearerClaims(bearer)
	if err != nil {
		return sdkerror.New(sdkerror.KindInvalidStateFile, err)
	}
	if !exp.After(time.Now().Add(skew)) {
		return sdkerror.New(sdkerror.KindInvalidStateFile, errors.New("restored bearer is stale"))
	}

	s.Bearer = bearer
	s.OrgEncKey = orgKey
	s.OrgID = orgID
	s.ExpiresAt = exp
	return nil
}

// persist atomically writes envelope(stateFileDoc)||"|"||bearer to path:
// write a sibling temp file, fsync, then rename over the target, so a
// concurrent reader never observes a partially written file.
func (s *State) persist(path string) error {
	doc := stateFileDoc{EncryptionKey: s.OrgEncKey.ToBase64()}
	plaintext, err := json.Marshal(doc)
	if err != nil {
		return sdkerror.New(sdkerror.KindInvalidStateFile, err)
	}

	env, err := envelope.Encrypt(s.Token.SeedKey, plaintext)
	if err != nil {
		return err
	}

	contents := env.Serialize() + "|" + s.Bearer

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return sdkerror.New(sdkerror.KindInvalidStateFile, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.WriteString(contents); err != nil {
		tmp.Close()
		return sdkerror.New(sdkerror.KindInvalidStateFile, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return sdkerror.New(sdkerror.KindInvalidStateFile, err)
	}
	if err := tmp.Close(); err != nil {
		return sdkerror.New(sdkerror.KindInvalidStateFile, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return sdkerror.New(sdkerror.KindInvalidStateFile, err)
	}
	return nil
}

// refresh performs a single identity request and updates bearer/org-key
// atomically from the caller's viewpoint: either both fields reflect the
// new response, or (on error) neither is touched (spec §5).
func (s *State) refresh(ctx context.Context) error {
	result, err := s.identityClient.Exchange(ctx, s.Region, s.Token)
	if err != nil {
		return err
	}
	s.Bearer = result.Bearer
	s.OrgEncKey = result.OrgKey
	s.OrgID = result.OrgID
	s.ExpiresAt = result.ExpiresAt
	return nil
}

// ReloadIfNeeded re-requests and re-persists credentials if the current
// bearer is within skew of expiry. It is a no-op otherwise. Identity
// request retries are not performed beyond this single attempt; a
// rate-limit or network error surfaces to the caller unchanged (spec §4.5).
func (s *State) ReloadIfNeeded(ctx context.Context) error {
	if s.ExpiresAt.After(time.Now().Add(skew)) {
		return nil
	}
	if err := s.refresh(ctx); err != nil {
		return err
	}
	if s.StateFile != "" {
		if err := s.persist(s.StateFile); err != nil {
			return err
		}
	}
	return nil
}

// BearerHeader returns the Authorization header value for REST calls.
func (s *State) BearerHeader() string {
	return "Bearer " + s.Bearer
}
