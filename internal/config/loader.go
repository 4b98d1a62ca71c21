package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, an optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. YAML file if ECL_CONFIG points at one
//  3. environment (prefix ECL_, e.g. ECL_WORKER_COUNT -> worker_count)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("ECL_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, WrapLoad(err)
		}
	}

	// ECL_STRESS_TIME_DECAY -> stress_time_decay; nested keys use the file
	// form, flat keys cover the common top-level knobs.
	envProvider := env.Provider("ECL_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "ecl_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, WrapLoad(err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, WrapLoad(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
