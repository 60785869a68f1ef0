package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override file values.
// A double underscore separates nesting levels:
//
//	RANKBOT_RIOT__API_KEY      -> riot.api_key
//	RANKBOT_TELEGRAM__TOKEN    -> telegram.token
//	RANKBOT_SCHEDULER__AT      -> scheduler.at
const EnvPrefix = "RANKBOT_"

// Load reads path, overlays the environment, fills defaults and validates.
// An empty path skips the file and builds the config from the environment
// alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		parsed, err := Parse(path, b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		cfg = *parsed
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("env overlay: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes a JSON or YAML document strictly: unknown keys and trailing
// data are rejected.
func Parse(path string, data []byte) (*Config, error) {
	jb, err := toJSON(path, data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	k := koanf.New(".")
	provider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(provider, nil); err != nil {
		return err
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	return k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"})
}
