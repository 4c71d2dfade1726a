// Package symkey implements the symmetric key pair (encryption half, MAC
// half) shared by every encrypted envelope in the SDK, and the HKDF-based
// derivation that binds an access token's seed to a reproducible key.
package symkey

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/ruachtech/secrets-sdk/internal/sdkerror"
)

// seedLen is the required length of the HKDF seed material (spec §4.1).
const seedLen = 16

// accessTokenInfo is the fixed HKDF info string for deriving an
// access-token key from its 16-byte seed (spec §4.1, from_access_seed).
const accessTokenInfo = "sm-access-token"

// accessTokenName is the fixed HKDF name used when deriving an
// access-token key (folded into the "bitwarden-<name>" HMAC key).
const accessTokenName = "accesstoken"

// Key holds a symmetric encryption/MAC key pair. The two halves are always
// equal in length (16 or 32 bytes). New copies its input, so a Key never
// aliases the caller's buffer; a plain copy of a Key value shares the
// underlying slices with the original.
type Key struct {
	EncKey []byte
	MacKey []byte
}

// New splits raw into an (EncKey, MacKey) pair. raw must be exactly 32 or 64
// bytes: a 32-byte input splits into two 16-byte halves (AES-128), a
// 64-byte input splits into two 32-byte halves (AES-256). Any other length
// fails with KindInvalidKeyLength.
func New(raw []byte) (Key, error) {
	switch len(raw) {
	case 32:
		return Key{EncKey: append([]byte(nil), raw[:16]...), MacKey: append([]byte(nil), raw[16:32]...)}, nil
	case 64:
		return Key{EncKey: append([]byte(nil), raw[:32]...), MacKey: append([]byte(nil), raw[32:64]...)}, nil
	default:
		return Key{}, sdkerror.Newf(sdkerror.KindInvalidKeyLength, "symmetric key material must be 32 or 64 bytes, got %d", len(raw))
	}
}

// Derive computes a 64-byte key via HMAC-SHA256 extract + HKDF-SHA256
// expand, per spec §4.1:
//
//	prk = HMAC-SHA256(key="bitwarden-"+name, msg=seed)
//	okm = HKDF-Expand(sha256, prk, info, 64)
//
// seed must be exactly 16 bytes. info is the raw bytes of the caller's info
// string (empty if the caller passes no info). The Extract half is written
// as a plain HMAC call (the same value as RFC 5869 Extract with salt
// "bitwarden-"+name and the seed as IKM); only the Expand half is taken
// from the library.
func Derive(seed []byte, name string, info []byte) (Key, error) {
	if len(seed) != seedLen {
		return Key{}, sdkerror.Newf(sdkerror.KindBadSeed, "derivation seed must be %d bytes, got %d", seedLen, len(seed))
	}

	mac := hmac.New(sha256.New, []byte("bitwarden-"+name))
	mac.Write(seed)
	prk := mac.Sum(nil)

	okm := make([]byte, 64)
	expander := hkdf.Expand(sha256.New, prk, info)
	if _, err := io.ReadFull(expander, okm); err != nil {
		return Key{}, sdkerror.New(sdkerror.KindBadSeed, err)
	}

	return New(okm)
}

// FromAccessSeed derives the access-token key used to decrypt the identity
// response and the state file: Derive(seed, "accesstoken", "sm-access-token").
func FromAccessSeed(seed []byte) (Key, error) {
	return Derive(seed, accessTokenName, []byte(accessTokenInfo))
}

// Equal reports whether k and other hold byte-identical halves.
func (k Key) Equal(other Key) bool {
	return hmac.Equal(k.EncKey, other.EncKey) && hmac.Equal(k.MacKey, other.MacKey)
}

// ToBase64 returns base64(EncKey || MacKey).
func (k Key) ToBase64() string {
	raw := make([]byte, 0, len(k.EncKey)+len(k.MacKey))
	raw = append(raw, k.EncKey...)
	raw = append(raw, k.MacKey...)
	return base64.StdEncoding.EncodeToString(raw)
}

// IsAES256 reports whether this key pair's halves are 32 bytes (AES-256)
// rather than 16 (AES-128).
func (k Key) IsAES256() bool {
	return len(k.EncKey) == 32
}
