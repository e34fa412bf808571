package casdict

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/casdict/backend"
)

// Params is the introspectable configuration of a dictionary handle. A
// handle can be reconstructed from its own reported Params plus the
// non-serializable parts (codec instance, signing secret, hooks).
type Params struct {
	Backend backend.Params `yaml:"backend" json:"backend"`

	// Format is the codec's extension tag ("json", "cbor", "msgpack", ...).
	Format string `yaml:"format" json:"format"`

	// DigestLen is the key-signing digest length in hex characters;
	// 0 means signing is disabled. The secret itself is never reported.
	DigestLen int `yaml:"digest_len,omitempty" json:"digest_len,omitempty"`

	// AppendOnly reflects the effective mutation policy, whether it comes
	// from the backend or a wrapper.
	AppendOnly bool `yaml:"append_only" json:"append_only"`

	// CheckProbability is set by the write-once wrapper; nil elsewhere.
	CheckProbability *float64 `yaml:"check_probability,omitempty" json:"check_probability,omitempty"`
}

// YAML serializes the params for config files and debug dumps.
func (p Params) YAML() ([]byte, error) {
	b, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("casdict: marshal params: %w", err)
	}
	return b, nil
}

// ParamsFromYAML parses params previously produced by Params.YAML.
func ParamsFromYAML(b []byte) (Params, error) {
	var p Params
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Params{}, fmt.Errorf("casdict: unmarshal params: %w", err)
	}
	return p, nil
}
