// Package accesstoken parses the user-visible access token string and
// derives its symmetric key.
package accesstoken

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"

	"github.com/ruachtech/secrets-sdk/internal/sdkerror"
	"github.com/ruachtech/secrets-sdk/internal/symkey"
)

const supportedVersion = "0"
const seedLen = 16

// Token holds the parsed fields of an access token string, plus the key
// derived from its seed. It is immutable once parsed.
type Token struct {
	AccessTokenID string
	ClientSecret  string
	SeedKey       symkey.Key
}

// Parse decodes a token string of the form
// "0.<access_token_id>.<client_secret>:<base64-16-byte-seed>".
//
// The version component before the first "." must be "0" — any other
// value fails KindUnsupportedTokenVersion (spec §9: future versions are
// introduced as new variants, never by relaxing this check).
func Parse(s string) (Token, error) {
	version, rest, ok := strings.Cut(s, ".")
	if !ok {
		return Token{}, sdkerror.New(sdkerror.KindInvalidToken, nil)
	}
	if version != supportedVersion {
		return Token{}, sdkerror.Newf(sdkerror.KindUnsupportedTokenVersion, "unsupported access token version %q", version)
	}

	idAndSecret, b64seed, ok := strings.Cut(rest, ":")
	if !ok {
		return Token{}, sdkerror.New(sdkerror.KindInvalidToken, nil)
	}

	id, secret, ok := strings.Cut(idAndSecret, ".")
	if !ok {
		return Token{}, sdkerror.New(sdkerror.KindInvalidToken, nil)
	}

	seed, err := base64.StdEncoding.DecodeString(b64seed)
	if err != nil {
		return Token{}, sdkerror.New(sdkerror.KindInvalidToken, err)
	}
	if len(seed) != seedLen {
		return Token{}, sdkerror.Newf(sdkerror.KindInvalidToken, "token seed must be %d bytes, got %d", seedLen, len(seed))
	}

	key, err := symkey.FromAccessSeed(seed)
	if err != nil {
		return Token{}, err
	}

	return Token{AccessTokenID: id, ClientSecret: secret, SeedKey: key}, nil
}

// ValidateIDShape opts into a strict check that AccessTokenID parses as a
// UUID. The core parser only requires the token's three-field shape; this
// is an extra check a caller can request when it wants to reject obviously
// malformed IDs before ever reaching the identity endpoint.
func ValidateIDShape(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return sdkerror.New(sdkerror.KindInvalidToken, err)
	}
	return nil
}
