package config

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"go.viam.com/projmap/logging"
)

// Read reads a config from the given file, expanding ${VAR} references from the environment. Files
// ending in .yaml or .yml are YAML, anything else is JSON.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies where, if applicable, the file the
// reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	cfg := Config{ConfigFilePath: originalPath}
	switch strings.ToLower(filepath.Ext(originalPath)) {
	case ".yaml", ".yml":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to decode Config from yaml")
		}
		cfg.normalizeYAMLAttributes()
	default:
		if err := json.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, errors.Wrap(err, "failed to decode Config from json")
		}
	}
	if err := cfg.Ensure(); err != nil {
		return nil, errors.Wrap(err, "failed to process Config")
	}
	logger.Debugw("read config", "path", originalPath, "projectors", len(cfg.Projectors))
	return &cfg, nil
}

// normalizeYAMLAttributes rewrites nested maps decoded by yaml with interface{} keys into string keyed
// maps, which is what JSON produces and what attribute decoding expects.
func (c *Config) normalizeYAMLAttributes() {
	c.Camera.Attributes = normalizeMap(c.Camera.Attributes)
	c.Display.Attributes = normalizeMap(c.Display.Attributes)
}

func normalizeMap(am AttributeMap) AttributeMap {
	if am == nil {
		return nil
	}
	out := make(AttributeMap, len(am))
	for k, v := range am {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if ks, ok := k.(string); ok {
				out[ks] = normalizeValue(inner)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = normalizeValue(inner)
		}
		return out
	default:
		return v
	}
}
