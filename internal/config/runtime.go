package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// SecretExpander expands ${provider:key} references inside runtime values
type SecretExpander interface {
	Expand(ctx context.Context, value string) (string, error)
}

// RuntimeConfig is the set of values forwarded to the backend's environment.
// It is built once and never mutated.
type RuntimeConfig struct {
	values map[string]string
	source string
}

// LoadRuntimeConfig builds the runtime configuration. The build artifact wins
// when it exists; the development file is used otherwise. Neither being present
// yields an empty configuration.
func LoadRuntimeConfig(ctx context.Context, artifactPath, devPath string, expander SecretExpander) (*RuntimeConfig, error) {
	var (
		raw    map[string]string
		source string
		err    error
	)

	switch {
	case fileExists(artifactPath):
		source = artifactPath
		raw, err = readArtifact(artifactPath)
	case fileExists(devPath):
		source = devPath
		raw, err = readDevFile(devPath)
	default:
		return &RuntimeConfig{values: map[string]string{}}, nil
	}
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(raw))
	for key, value := range raw {
		if expander != nil {
			expanded, err := expander.Expand(ctx, value)
			if err != nil {
				return nil, fmt.Errorf("runtime config key %s: %w", key, err)
			}
			value = expanded
		}
		values[key] = value
	}

	return &RuntimeConfig{values: values, source: source}, nil
}

// NewRuntimeConfig builds a runtime configuration from an in-memory map
func NewRuntimeConfig(values map[string]string) *RuntimeConfig {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &RuntimeConfig{values: copied}
}

// Get returns the value for key
func (rc *RuntimeConfig) Get(key string) (string, bool) {
	v, ok := rc.values[key]
	return v, ok
}

// Keys returns the configured keys in sorted order
func (rc *RuntimeConfig) Keys() []string {
	keys := make([]string, 0, len(rc.values))
	for k := range rc.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Environ returns KEY=value pairs sorted by key
func (rc *RuntimeConfig) Environ() []string {
	keys := rc.Keys()
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+rc.values[k])
	}
	return env
}

// Len returns the number of entries
func (rc *RuntimeConfig) Len() int {
	return len(rc.values)
}

// Source returns the file the configuration was read from, empty when none
func (rc *RuntimeConfig) Source() string {
	return rc.source
}

// DefaultRuntimeConfigPath returns runtime-config.json next to the running executable
func DefaultRuntimeConfigPath() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "runtime-config.json")
}

func readArtifact(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime config %s: %w", path, err)
	}

	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse runtime config %s: %w", path, err)
	}
	return values, nil
}

func readDevFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dev config %s: %w", path, err)
	}

	generic := map[string]interface{}{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &generic); err != nil {
			return nil, fmt.Errorf("failed to parse dev config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("failed to parse dev config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported dev config format %q", ext)
	}

	values := make(map[string]string, len(generic))
	for k, v := range generic {
		switch tv := v.(type) {
		case string:
			values[k] = tv
		case bool, int, int64, float64, uint64:
			values[k] = fmt.Sprint(tv)
		default:
			return nil, fmt.Errorf("dev config key %s: nested values are not supported", k)
		}
	}
	return values, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
