package am

import (
	"bytes"

	"github.com/BurntSushi/toml"

	"github.com/teranos/logtap/errors"
)

// Render encodes the effective configuration as TOML, in the same layout
// accepted by am.toml.
func Render(cfg *Config) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", errors.Wrap(err, "failed to encode config as TOML")
	}
	return buf.String(), nil
}
