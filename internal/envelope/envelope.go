// Package envelope implements the textual encrypted envelope format used
// throughout the SDK: "[<ver>.]<b64-iv>|<b64-ct>|<b64-mac>", an
// encrypt-then-MAC construction of AES-CBC with PKCS#7 padding and
// HMAC-SHA256, decrypted with constant-time MAC verification.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/ruachtech/secrets-sdk/internal/sdkerror"
	"github.com/ruachtech/secrets-sdk/internal/symkey"
)

// Algo identifies the envelope's algorithm tag.
type Algo string

const (
	AES128CBCHMACSHA256 Algo = "1"
	AES256CBCHMACSHA256 Algo = "2"
)

const (
	ivLen  = 16
	macLen = 32
	blockL = 16
)

// Envelope is a parsed "iv|ct|mac" value with its algorithm tag. The MAC
// covers IV||ciphertext only — the algorithm tag itself is never
// authenticated, a compatibility wart inherited from the wire protocol
// (spec §4.2, §9): do not "fix" this by folding the tag into the MAC input.
type Envelope struct {
	Algo Algo
	IV   []byte
	CT   []byte
	MAC  []byte
}

// Parse decodes the textual envelope form. An absent "<ver>." prefix
// defaults to AES128CBCHMACSHA256. Any malformed input — wrong version,
// wrong part count, wrong field size, bad base64 — fails KindInvalidEnvelope.
func Parse(s string) (Envelope, error) {
	algo := AES128CBCHMACSHA256
	body := s

	// Base64 never emits ".", so any "." in the string is the version
	// separator — split once and require a recognized version.
	if ver, rest, found := strings.Cut(s, "."); found {
		switch Algo(ver) {
		case AES128CBCHMACSHA256, AES256CBCHMACSHA256:
			algo = Algo(ver)
			body = rest
		default:
			return Envelope{}, sdkerror.Newf(sdkerror.KindInvalidEnvelope, "unrecognized envelope version %q", ver)
		}
	}

	parts := strings.Split(body, "|")
	if len(parts) != 3 {
		return Envelope{}, sdkerror.Newf(sdkerror.KindInvalidEnvelope, "envelope must have 3 parts, got %d", len(parts))
	}

	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return Envelope{}, sdkerror.New(sdkerror.KindInvalidEnvelope, err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return Envelope{}, sdkerror.New(sdkerror.KindInvalidEnvelope, err)
	}
	mac, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return Envelope{}, sdkerror.New(sdkerror.KindInvalidEnvelope, err)
	}

	if len(iv) != ivLen {
		return Envelope{}, sdkerror.Newf(sdkerror.KindInvalidEnvelope, "iv must be %d bytes, got %d", ivLen, len(iv))
	}
	if len(ct) == 0 || len(ct)%blockL != 0 {
		return Envelope{}, sdkerror.Newf(sdkerror.KindInvalidEnvelope, "ciphertext must be non-empty and a multiple of %d bytes, got %d", blockL, len(ct))
	}
	if len(mac) != macLen {
		return Envelope{}, sdkerror.Newf(sdkerror.KindInvalidEnvelope, "mac must be %d bytes, got %d", macLen, len(mac))
	}

	return Envelope{Algo: algo, IV: iv, CT: ct, MAC: mac}, nil
}

// Serialize renders the envelope back to its textual wire form, always
// emitting the version prefix.
func (e Envelope) Serialize() string {
	var b strings.Builder
	b.WriteString(string(e.Algo))
	b.WriteByte('.')
	b.WriteString(base64.StdEncoding.EncodeToString(e.IV))
	b.WriteByte('|')
	b.WriteString(base64.StdEncoding.EncodeToString(e.CT))
	b.WriteByte('|')
	b.WriteString(base64.StdEncoding.EncodeToString(e.MAC))
	return b.String()
}

// Encrypt builds a fresh envelope over plaintext under key using a random
// 16-byte IV: PKCS#7-pad to a block boundary, AES-CBC encrypt, then
// HMAC-SHA256 over IV||ciphertext. The algorithm tag is chosen from the
// key's length (AES256 for 32-byte halves, else AES128).
func Encrypt(key symkey.Key, plaintext []byte) (Envelope, error) {
	block, err := aes.NewCipher(key.EncKey)
	if err != nil {
		return Envelope{}, sdkerror.New(sdkerror.KindInvalidKeyLength, err)
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, sdkerror.New(sdkerror.KindInvalidEnvelope, err)
	}

	padded := pkcs7Pad(plaintext, blockL)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	mac := hmac.New(sha256.New, key.MacKey)
	mac.Write(iv)
	mac.Write(ct)

	algo := AES128CBCHMACSHA256
	if key.IsAES256() {
		algo = AES256CBCHMACSHA256
	}

	return Envelope{Algo: algo, IV: iv, CT: ct, MAC: mac.Sum(nil)}, nil
}

// Decrypt verifies the envelope's MAC (constant-time) and, only on a
// match, decrypts and unpads the ciphertext. The MAC is checked before any
// ciphertext access, so a wrong key always fails KindMacMismatch rather
// than a padding error — never the reverse (spec §8, property 3).
func (e Envelope) Decrypt(key symkey.Key) ([]byte, error) {
	mac := hmac.New(sha256.New, key.MacKey)
	mac.Write(e.IV)
	mac.Write(e.CT)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, e.MAC) != 1 {
		return nil, sdkerror.New(sdkerror.KindMacMismatch, nil)
	}

	block, err := aes.NewCipher(key.EncKey)
	if err != nil {
		return nil, sdkerror.New(sdkerror.KindInvalidKeyLength, err)
	}
	if len(e.CT)%block.BlockSize() != 0 {
		return nil, sdkerror.Newf(sdkerror.KindInvalidPadding, "ciphertext length %d is not a multiple of the block size", len(e.CT))
	}

	padded := make([]byte, len(e.CT))
	cipher.NewCBCDecrypter(block, e.IV).CryptBlocks(padded, e.CT)

	return pkcs7Unpad(padded, blockL)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte(nil), data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, sdkerror.Newf(sdkerror.KindInvalidPadding, "padded data length %d is invalid", n)
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, sdkerror.Newf(sdkerror.KindInvalidPadding, "invalid padding length %d", padLen)
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, sdkerror.New(sdkerror.KindInvalidPadding, nil)
		}
	}
	return data[:n-padLen], nil
}
