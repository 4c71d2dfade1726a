package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"github.com/ruachtech/secrets-sdk/internal/accesstoken"
	"github.com/ruachtech/secrets-sdk/internal/envelope"
	"github.com/ruachtech/secrets-sdk/internal/region"
	"github.com/ruachtech/secrets-sdk/internal/symkey"
)

const testToken = "0.client-id.client-secret:MDAwMDAwMDAwMDAwMDAwMA=="

type testClaims struct {
	Organization string `json:"organization"`
	jwt.RegisteredClaims
}

func newFakeBackend(t *testing.T) (*httptest.Server, symkey.Key) {
	t.Helper()
	tok, err := accesstoken.Parse(testToken)
	require.NoError(t, err)

	orgKey, err := symkey.New(make([]byte, 64))
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims{
		Organization: "org-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	bearer, err := token.SignedString([]byte("unused"))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		payload, _ := json.Marshal(struct {
			EncryptionKey string `json:"encryptionKey"`
		}{EncryptionKey: base64.StdEncoding.EncodeToString(append(append([]byte{}, orgKey.EncKey...), orgKey.MacKey...))})
		env, err := envelope.Encrypt(tok.SeedKey, payload)
		require.NoError(t, err)

		resp := struct {
			AccessToken      string `json:"access_token"`
			EncryptedPayload string `json:"encrypted_payload"`
		}{AccessToken: bearer, EncryptedPayload: env.Serialize()}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/secrets/", func(w http.ResponseWriter, r *http.Request) {
		env, err := envelope.Encrypt(orgKey, []byte("plaintext-value"))
		require.NoError(t, err)
		keyEnv, err := envelope.Encrypt(orgKey, []byte("plaintext-key"))
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(struct {
			ID    string `json:"id"`
			Key   string `json:"key"`
			Value string `json:"value"`
		}{ID: "abc", Key: keyEnv.Serialize(), Value: env.Serialize()})
	})

	return httptest.NewServer(mux), orgKey
}

func TestNew_BootstrapsAndGetByID(t *testing.T) {
	srv, _ := newFakeBackend(t)
	defer srv.Close()

	reg := region.Region{Name: "test", APIURL: srv.URL, IdentityURL: srv.URL}
	c, err := New(context.Background(), testToken, reg, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	defer c.Close()

	secret, err := c.GetByID(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "plaintext-key", secret.Key)
	require.Equal(t, "plaintext-value", secret.Value)
}

func TestNew_RejectsInvalidRegion(t *testing.T) {
	badRegion := region.Region{Name: "bad", APIURL: "not-a-url", IdentityURL: "https://identity.example.com"}
	_, err := New(context.Background(), testToken, badRegion)
	require.Error(t, err)
}

func TestNew_StrictTokenShapeRejectsNonUUID(t *testing.T) {
	reg, _ := region.Named("us")
	_, err := New(context.Background(), testToken, reg, StrictTokenShape(true))
	require.Error(t, err)
}

func TestNew_StrictTokenShapeAcceptsUUID(t *testing.T) {
	srv, _ := newFakeBackend(t)
	defer srv.Close()

	uuidToken := "0.7c4f3a2e-5b1d-4e8a-9c6f-1a2b3c4d5e6f.client-secret:MDAwMDAwMDAwMDAwMDAwMA=="
	reg := region.Region{Name: "test", APIURL: srv.URL, IdentityURL: srv.URL}

	c, err := New(context.Background(), uuidToken, reg, WithHTTPClient(srv.Client()), StrictTokenShape(true))
	require.NoError(t, err)
	defer c.Close()
}
