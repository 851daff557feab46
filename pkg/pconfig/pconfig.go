// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pconfig loads the pickle server configuration: built-in defaults, then a YAML file,
// then PICKLE_* variables (from a .env file or the process environment, the process wins).
package pconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"time"

	"github.com/joho/godotenv"
	"github.com/wavetermdev/pickle/pkg/util/valutil"
	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "~/.config/pickle/config.yaml"
const DefaultEnvFile = ".env"

const (
	StorageBackend_Memory = "memory"
	StorageBackend_Sqlite = "sqlite"
	StorageBackend_Bolt   = "bolt"
)

type StorageConfig struct {
	Backend string `yaml:"backend" env:"PICKLE_STORAGE_BACKEND" jsonschema:"enum=memory,enum=sqlite,enum=bolt"`
	Path    string `yaml:"path" env:"PICKLE_STORAGE_PATH"`
	Key     string `yaml:"key" env:"PICKLE_STORAGE_KEY"`
}

type Config struct {
	Listen        string        `yaml:"listen" env:"PICKLE_LISTEN"`
	RenderDelayMs int           `yaml:"renderdelayms" env:"PICKLE_RENDER_DELAY_MS"`
	TimeTravel    bool          `yaml:"timetravel" env:"PICKLE_TIME_TRAVEL"`
	HistoryLimit  int           `yaml:"historylimit" env:"PICKLE_HISTORY_LIMIT"`
	Autosave      bool          `yaml:"autosave" env:"PICKLE_AUTOSAVE"`
	Metrics       bool          `yaml:"metrics" env:"PICKLE_METRICS"`
	Storage       StorageConfig `yaml:"storage"`
}

func Default() *Config {
	return &Config{
		Listen:       "localhost:8190",
		TimeTravel:   true,
		HistoryLimit: 500,
		Metrics:      true,
		Storage: StorageConfig{
			Backend: StorageBackend_Memory,
			Path:    "~/.local/share/pickle/state.db",
			Key:     "todos",
		},
	}
}

func (c *Config) RenderDelay() time.Duration {
	return time.Duration(c.RenderDelayMs) * time.Millisecond
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageBackend_Memory, StorageBackend_Sqlite, StorageBackend_Bolt:
	default:
		return fmt.Errorf("invalid storage backend %q", c.Storage.Backend)
	}
	if c.RenderDelayMs < 0 {
		return fmt.Errorf("renderdelayms cannot be negative")
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("historylimit cannot be negative")
	}
	return nil
}

type LoadOpts struct {
	ConfigPath string // DefaultConfigPath when empty; a missing file is not an error
	EnvFile    string // DefaultEnvFile when empty; a missing file is not an error
	// LookupEnv replaces os.LookupEnv (tests).
	LookupEnv func(key string) (string, bool)
}

func Load(opts LoadOpts) (*Config, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	lookupEnv := opts.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	config := Default()
	data, err := os.ReadFile(valutil.ExpandHomeDir(configPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := decodeYaml(data, config); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", configPath, err)
		}
	}
	dotEnv, err := godotenv.Read(valutil.ExpandHomeDir(envFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	err = applyEnv(reflect.ValueOf(config).Elem(), func(key string) (string, bool) {
		if val, ok := lookupEnv(key); ok {
			return val, true
		}
		val, ok := dotEnv[key]
		return val, ok
	})
	if err != nil {
		return nil, err
	}
	config.Storage.Path = valutil.ExpandHomeDir(config.Storage.Path)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func decodeYaml(data []byte, config *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(config)
}

func applyEnv(sv reflect.Value, lookup func(string) (string, bool)) error {
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if field.Type.Kind() == reflect.Struct {
			if err := applyEnv(sv.Field(i), lookup); err != nil {
				return err
			}
			continue
		}
		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}
		strVal, ok := lookup(envName)
		if !ok {
			continue
		}
		parsed, err := valutil.ParseTyped(strVal, field.Type)
		if err != nil {
			return fmt.Errorf("%s: %w", envName, err)
		}
		sv.Field(i).Set(parsed)
	}
	return nil
}
