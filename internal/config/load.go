package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SupportedVersion is the only config schema version accepted
const SupportedVersion = "v1"

// secretPaths lists fields that must be given as {"$env": ...} references
var secretPaths = [][]string{
	{"storage", "redisPassword"},
	{"storage", "s3AccessKey"},
	{"storage", "s3SecretKey"},
	{"storage", "encryptionKey"},
	{"notifier", "pushoverToken"},
	{"notifier", "pushoverUser"},
}

// readJSON returns the file contents as JSON, converting YAML files first
func readJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("converting config YAML: %w", err)
		}
		return converted, nil
	default:
		return data, nil
	}
}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := readJSON(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse runs the same pipeline as Load on an in-memory JSON document
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != SupportedVersion {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// lookup walks nested objects along path
func lookup(raw map[string]any, path []string) (any, bool) {
	var cur any = raw
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func checkSecretRef(name string, value any) error {
	if _, isString := value.(string); isString {
		return fmt.Errorf("%s must use environment variable reference for security", name)
	}
	if refMap, isMap := value.(map[string]any); isMap {
		if _, hasEnv := refMap["$env"]; !hasEnv {
			return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
		}
	}
	return nil
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, path := range secretPaths {
		if value, exists := lookup(rawConfig, path); exists {
			if err := checkSecretRef(strings.Join(path, "."), value); err != nil {
				return err
			}
		}
	}

	providers, _ := rawConfig["providers"].(map[string]any)
	for name, p := range providers {
		provider, ok := p.(map[string]any)
		if !ok {
			return fmt.Errorf("providers.%s must be an object", name)
		}
		if value, exists := provider["clientSecret"]; exists {
			if err := checkSecretRef("providers."+name+".clientSecret", value); err != nil {
				return err
			}
		}
	}
	return nil
}
