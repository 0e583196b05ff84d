package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/tripproxy/pkg/tripproxy/template"
)

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// Expand substitutes ${VAR} placeholders in every string value using lookup.
// Unset variables become empty strings. The receiver is not modified.
//
// Example:
//
//	cfg, _ := config.FromYAML([]byte("cache:\n  path: ${DATA_DIR}/cache.db\n"))
//	cfg, _ = cfg.Expand(template.OSLookup)
func (c Config) Expand(lookup template.LookupFunc) (Config, error) {
	r := template.NewResolver(template.WithLookup(lookup))
	out, err := r.ResolveOptions(normalize(c.data))
	if err != nil {
		return Config{}, fmt.Errorf("expand config: %w", err)
	}
	m, _ := out.(map[string]any)
	return New(m), nil
}

// normalize converts map[any]any sections into map[string]any so they can be walked.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		m, ok := asMap(val)
		if !ok {
			return v
		}
		return normalize(m)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
