package envelope

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruachtech/secrets-sdk/internal/sdkerror"
	"github.com/ruachtech/secrets-sdk/internal/symkey"
)

func testKey(t *testing.T) symkey.Key {
	t.Helper()
	k, err := symkey.New(make([]byte, 32))
	require.NoError(t, err)
	return k
}

// TestParse_S4 pins scenario S4: version prefix "2." selects AES256.
func TestParse_S4(t *testing.T) {
	iv := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("0"), 16))
	ct := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("1"), 32))
	mac := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("2"), 32))

	env, err := Parse("2." + iv + "|" + ct + "|" + mac)
	require.NoError(t, err)
	require.Equal(t, AES256CBCHMACSHA256, env.Algo)
	require.Equal(t, bytes.Repeat([]byte("0"), 16), env.IV)
	require.Equal(t, bytes.Repeat([]byte("1"), 32), env.CT)
	require.Equal(t, bytes.Repeat([]byte("2"), 32), env.MAC)
}

// TestParse_S5 pins scenario S5: an absent version prefix defaults to AES128.
func TestParse_S5(t *testing.T) {
	iv := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("0"), 16))
	ct := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("1"), 32))
	mac := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("2"), 32))

	env, err := Parse(iv + "|" + ct + "|" + mac)
	require.NoError(t, err)
	require.Equal(t, AES128CBCHMACSHA256, env.Algo)
	require.Equal(t, bytes.Repeat([]byte("0"), 16), env.IV)
	require.Equal(t, bytes.Repeat([]byte("1"), 32), env.CT)
	require.Equal(t, bytes.Repeat([]byte("2"), 32), env.MAC)
}

func TestParse_RejectsBadVersion(t *testing.T) {
	_, err := Parse("3.aaaa|bbbb|cccc")
	require.Error(t, err)
	requireKind(t, err, sdkerror.KindInvalidEnvelope)
}

func TestParse_RejectsWrongPartCount(t *testing.T) {
	_, err := Parse("aaaa|bbbb")
	require.Error(t, err)
	requireKind(t, err, sdkerror.KindInvalidEnvelope)
}

func TestParse_RejectsBadIVLength(t *testing.T) {
	shortIV := base64.StdEncoding.EncodeToString([]byte("short"))
	ct := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("1"), 16))
	mac := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("2"), 32))
	_, err := Parse(shortIV + "|" + ct + "|" + mac)
	require.Error(t, err)
	requireKind(t, err, sdkerror.KindInvalidEnvelope)
}

func TestParse_RejectsBadMACLength(t *testing.T) {
	iv := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("0"), 16))
	ct := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("1"), 16))
	shortMAC := base64.StdEncoding.EncodeToString([]byte("short"))
	_, err := Parse(iv + "|" + ct + "|" + shortMAC)
	require.Error(t, err)
	requireKind(t, err, sdkerror.KindInvalidEnvelope)
}

func TestParse_RejectsNonBase64(t *testing.T) {
	_, err := Parse("not-base64!!|not-base64!!|not-base64!!")
	require.Error(t, err)
	requireKind(t, err, sdkerror.KindInvalidEnvelope)
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	key := testKey(t)
	for _, plaintext := range [][]byte{
		nil,
		[]byte(""),
		[]byte("hello world"),
		bytes.Repeat([]byte("x"), 10*1024),
	} {
		env, err := Encrypt(key, plaintext)
		require.NoError(t, err)

		got, err := env.Decrypt(key)
		require.NoError(t, err)
		require.Equal(t, plaintext, got)
	}
}

func TestEncrypt_FreshnessAcrossCalls(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("same plaintext")

	e1, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	e2, err := Encrypt(key, plaintext)
	require.NoError(t, err)

	require.NotEqual(t, e1.IV, e2.IV)
	require.NotEqual(t, e1.CT, e2.CT)
	require.NotEqual(t, e1.MAC, e2.MAC)

	p1, err := e1.Decrypt(key)
	require.NoError(t, err)
	p2, err := e2.Decrypt(key)
	require.NoError(t, err)
	require.Equal(t, plaintext, p1)
	require.Equal(t, plaintext, p2)
}

func TestDecrypt_WrongKeyFailsMacMismatchNotPadding(t *testing.T) {
	key := testKey(t)
	wrongKey := testKey(t)
	wrongKey.EncKey[0] ^= 0xFF
	wrongKey.MacKey[0] ^= 0xFF

	env, err := Encrypt(key, []byte("secret value"))
	require.NoError(t, err)

	_, err = env.Decrypt(wrongKey)
	require.Error(t, err)
	requireKind(t, err, sdkerror.KindMacMismatch)
}

func TestDecrypt_TamperDetected(t *testing.T) {
	key := testKey(t)

	for _, field := range []string{"iv", "ct", "mac"} {
		env, err := Encrypt(key, []byte("tamper me"))
		require.NoError(t, err)

		switch field {
		case "iv":
			env.IV[0] ^= 0x01
		case "ct":
			env.CT[0] ^= 0x01
		case "mac":
			env.MAC[0] ^= 0x01
		}

		_, err = env.Decrypt(key)
		require.Error(t, err, "field %s", field)
		requireKind(t, err, sdkerror.KindMacMismatch)
	}
}

func TestSerialize_AlwaysIncludesVersion(t *testing.T) {
	key := testKey(t)
	env, err := Encrypt(key, []byte("x"))
	require.NoError(t, err)

	serialized := env.Serialize()
	reparsed, err := Parse(serialized)
	require.NoError(t, err)
	require.Equal(t, env.Algo, reparsed.Algo)
	require.Equal(t, env.IV, reparsed.IV)
	require.Equal(t, env.CT, reparsed.CT)
	require.Equal(t, env.MAC, reparsed.MAC)
}

func requireKind(t *testing.T, err error, kind sdkerror.Kind) {
	t.Helper()
	var sdkErr *sdkerror.Error
	require.ErrorAs(t, err, &sdkErr)
	require.Equal(t, kind, sdkErr.Kind)
}
