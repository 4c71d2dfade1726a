package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamed_BuiltinPresets(t *testing.T) {
	us, ok := Named("us")
	require.True(t, ok)
	require.Equal(t, "https://api.bitwarden.com", us.APIURL)

	eu, ok := Named("EU")
	require.True(t, ok)
	require.Equal(t, "https://identity.bitwarden.eu", eu.IdentityURL)

	_, ok = Named("mars")
	require.False(t, ok)
}

func TestValidate_RejectsPlainHTTPForHostedRegion(t *testing.T) {
	r := Region{Name: "bad", APIURL: "http://api.example.com", IdentityURL: "https://identity.example.com"}
	require.Error(t, Validate(r))
}

func TestValidate_AllowsPlainHTTPForLocalhost(t *testing.T) {
	r := Region{Name: "dev", APIURL: "http://localhost:4000", IdentityURL: "http://127.0.0.1:4001"}
	require.NoError(t, Validate(r))
}

func TestValidate_RejectsRelativeURL(t *testing.T) {
	r := Region{Name: "bad", APIURL: "/not-absolute", IdentityURL: "https://identity.example.com"}
	require.Error(t, Validate(r))
}

func TestLoadOverrides_MergesOverBuiltin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regions.yaml")
	contents := `
regions:
  self-hosted:
    api_url: https://api.example.internal
    identity_url: https://identity.example.internal
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	merged, err := LoadOverrides(path)
	require.NoError(t, err)

	require.Contains(t, merged, "us")
	require.Contains(t, merged, "self-hosted")
	require.Equal(t, "https://api.example.internal", merged["self-hosted"].APIURL)

	// The built-in table itself must remain untouched.
	us, _ := Named("us")
	require.Equal(t, "https://api.bitwarden.com", us.APIURL)
}

func TestLoadOverrides_RejectsInvalidRegion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regions.yaml")
	contents := `
regions:
  broken:
    api_url: not-a-url
    identity_url: https://identity.example.internal
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := LoadOverrides(path)
	require.Error(t, err)
}
