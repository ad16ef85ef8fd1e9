package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samcharles93/tokwrap/internal/prompt"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the tokwrap configuration file
// ($XDG_CONFIG_HOME/tokwrap/config.yaml). Pointer fields distinguish
// "not set" from zero values.
type Config struct {
	Tokenizer string `yaml:"tokenizer"`
	Families  string `yaml:"families"`
	Family    string `yaml:"family"`

	Wrapping          *prompt.Wrapping `yaml:"wrapping"`
	MaxImageBatchSize *int64           `yaml:"max_image_batch_size"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tokwrap", "config.yaml")
}

// LoadConfig reads the config file at path, or at the default location when
// path is empty. A missing default file yields a zero Config; a missing
// explicit file is an error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig copies config file values into opts for every flag that was
// not explicitly set on the command line.
func applyConfig(c *cli.Command, cfg Config, opts *options) {
	if cfg.Tokenizer != "" && !c.IsSet("tokenizer") {
		opts.tokenizerPath = cfg.Tokenizer
	}
	if cfg.Families != "" && !c.IsSet("families") {
		opts.familiesPath = cfg.Families
	}
	if cfg.Family != "" && !c.IsSet("family") {
		opts.family = cfg.Family
	}
	if cfg.Wrapping != nil && !c.IsSet("wrapping") {
		opts.wrapping = cfg.Wrapping.String()
	}
	if cfg.MaxImageBatchSize != nil && !c.IsSet("max-image-batch-size") {
		opts.maxImageBatch = *cfg.MaxImageBatchSize
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		opts.logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		opts.logFormat = cfg.LogFormat
	}
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		opts.addr = cfg.ServerAddress
	}
}
