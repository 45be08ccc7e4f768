package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// resolveValue parses a JSON value that could be a string or an
// {"$env": "VAR"} reference object
func resolveValue(raw []byte) (string, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	s, err := resolveValue(data)
	if err != nil {
		return err
	}
	*v = Value(s)
	return nil
}

// UnmarshalJSON resolves env references. Load rejects plain-string secrets
// before this runs.
func (s *Secret) UnmarshalJSON(data []byte) error {
	v, err := resolveValue(data)
	if err != nil {
		return err
	}
	*s = Secret(v)
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("duration must be a string like \"1s\": %w", err)
	}
	if str == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("parsing duration: %w", err)
	}
	*d = Duration(parsed)
	return nil
}
