// Package region holds the named {api_url, identity_url} presets used to
// reach the hosted secrets service, plus an optional loader for
// self-hosted overrides supplied as YAML.
package region

import (
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Region is the pair of base URLs a client talks to.
type Region struct {
	Name        string `yaml:"-"`
	APIURL      string `yaml:"api_url"`
	IdentityURL string `yaml:"identity_url"`
}

// builtin holds the presets shipped with the SDK.
var builtin = map[string]Region{
	"us": {Name: "us", APIURL: "https://api.bitwarden.com", IdentityURL: "https://identity.bitwarden.com"},
	"eu": {Name: "eu", APIURL: "https://api.bitwarden.eu", IdentityURL: "https://identity.bitwarden.eu"},
}

// Named looks up a built-in region preset by name ("us" or "eu").
func Named(name string) (Region, bool) {
	r, ok := builtin[strings.ToLower(name)]
	return r, ok
}

// fileDoc is the shape of a region override file:
//
//	regions:
//	  us:
//	    api_url: https://api.bitwarden.com
//	    identity_url: https://identity.bitwarden.com
type fileDoc struct {
	Regions map[string]Region `yaml:"regions"`
}

// LoadOverrides reads a YAML file of named region overrides/additions and
// merges them over the built-in table, returning the combined set. The
// built-in table itself is never mutated.
func LoadOverrides(path string) (map[string]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading region override file %q", path)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parsing region override file %q", path)
	}

	merged := make(map[string]Region, len(builtin)+len(doc.Regions))
	for name, r := range builtin {
		merged[name] = r
	}
	for name, r := range doc.Regions {
		r.Name = name
		if err := Validate(r); err != nil {
			return nil, errors.Wrapf(err, "region %q", name)
		}
		merged[name] = r
	}
	return merged, nil
}

// Validate checks that both URLs are absolute and https (plain http is
// only accepted for localhost/loopback, to support self-hosted dev setups
// without weakening the default requirement for hosted regions).
func Validate(r Region) error {
	for _, raw := range []string{r.APIURL, r.IdentityURL} {
		u, err := url.Parse(raw)
		if err != nil {
			return errors.Wrapf(err, "invalid URL %q", raw)
		}
		if !u.IsAbs() {
			return errors.Errorf("URL %q must be absolute", raw)
		}
		switch u.Scheme {
		case "https":
			// OK.
		case "http":
			host := u.Hostname()
			if host != "localhost" && host != "127.0.0.1" && host != "::1" {
				return errors.Errorf("plain http is only allowed for localhost, got %q", raw)
			}
		default:
			return errors.Errorf("unsupported URL scheme %q in %q", u.Scheme, raw)
		}
	}
	return nil
}
