package charter

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Parse decodes a YAML charter and validates it. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ValidationError{Reason: "empty charter document"}
		}
		return nil, &ValidationError{Reason: fmt.Sprintf("yaml: %v", err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses the charter at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading charter %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("charter %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a fresh copy of the built-in charter used when no
// charter directory is configured.
func Default() *Config {
	cfg, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default charter is invalid: %v", err))
	}
	return cfg
}

// DefaultYAML returns the source of the built-in charter.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}

// Marshal encodes cfg as YAML that Parse accepts.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding charter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding charter: %w", err)
	}
	return buf.Bytes(), nil
}
