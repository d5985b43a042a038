package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"engram/internal/errors"
	"engram/internal/tape"
)

// AdapterOverridesName is the optional per-user override file under
// ~/.engram that re-points adapter artifact discovery.
const AdapterOverridesName = "adapters.toml"

// AdapterOverride adjusts discovery for a single adapter.
type AdapterOverride struct {
	Disabled bool     `toml:"disabled"`
	Paths    []string `toml:"paths"`
}

// AdapterOverrides is the parsed adapters.toml document, keyed by adapter
// id.
type AdapterOverrides struct {
	Adapters map[string]AdapterOverride `toml:"adapters"`
}

// LoadAdapterOverrides parses the override file. A missing file yields
// empty overrides.
func LoadAdapterOverrides(path string) (*AdapterOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &AdapterOverrides{}, nil
		}
		return nil, errors.NewEngramError(errors.ConfigError,
			fmt.Sprintf("could not read %s", path), err)
	}
	var out AdapterOverrides
	if err := toml.Unmarshal(data, &out); err != nil {
		return nil, errors.NewEngramError(errors.ConfigError,
			fmt.Sprintf("could not parse %s", path), err)
	}
	return &out, nil
}

// DiscoveryPaths returns the artifact path templates for an adapter after
// applying overrides, expanded against the home directory. Reports false
// when the adapter is disabled.
func (o *AdapterOverrides) DiscoveryPaths(id tape.AdapterID, home string) ([]string, bool) {
	if o != nil {
		if override, ok := o.Adapters[string(id)]; ok {
			if override.Disabled {
				return nil, false
			}
			if len(override.Paths) > 0 {
				expanded := make([]string, 0, len(override.Paths))
				for _, p := range override.Paths {
					expanded = append(expanded, strings.ReplaceAll(p, "~", home))
				}
				return expanded, true
			}
		}
	}
	return tape.DiscoveryScaffold(id, home), true
}
