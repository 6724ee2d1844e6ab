// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the sandbox service configuration.
//
// Configuration comes from three layers, later layers winning: built-in
// defaults, an optional YAML file, and SANDBOX_* environment variables.
// The result is validated before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSandbox/pkg/logging"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/cache"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/telemetry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid sandbox configuration")

// Config is the complete sandbox service configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Limits    sandbox.Limits   `yaml:"limits"`
	Cache     CacheConfig      `yaml:"cache"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Address is the listen address. Default: ":12230"
	Address string `yaml:"address" validate:"required,hostname_port"`

	// ReadTimeout bounds reading one request, body included.
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gt=0"`

	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`

	// RateLimit is the sustained transforms per second. Zero disables.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`

	// RateBurst is the transform token bucket size.
	RateBurst int `yaml:"rate_burst" validate:"gte=1"`
}

// CacheConfig configures the outcome cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `yaml:"path" validate:"required_if=Enabled true InMemory false"`

	InMemory bool `yaml:"in_memory"`

	// Compression is "none", "lz4" or "zstd".
	Compression string `yaml:"compression" validate:"compression"`

	// TTL is how long outcomes are kept. Zero keeps them forever.
	TTL time.Duration `yaml:"ttl" validate:"gte=0"`

	// GCInterval is the value log GC period for persistent stores.
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`

	// Dir enables JSON file logging.
	Dir string `yaml:"dir"`

	// Format is "", "text" or "json". Empty picks by terminal.
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":12230",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateBurst:       8,
		},
		Limits: sandbox.DefaultLimits(),
		Cache: CacheConfig{
			Enabled:     true,
			InMemory:    true,
			Compression: cache.CompressionZstd.String(),
			TTL:         24 * time.Hour,
			GCInterval:  5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("compression", func(fl validator.FieldLevel) bool {
		_, err := cache.ParseCompression(fl.Field().String())
		return err == nil
	})
}

// Load builds the configuration from defaults, path and the environment.
//
// Inputs:
//
//	path - YAML file. Empty skips the file layer; a missing file is an
//	error.
//
// Outputs:
//
//	Config - The validated configuration.
//	error - A read, parse, or ErrInvalidConfig error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from SANDBOX_* variables. Malformed values
// are ignored.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SANDBOX_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SANDBOX_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = f
		}
	}
	if v := os.Getenv("SANDBOX_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SANDBOX_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
		cfg.Cache.InMemory = false
	}
	if v := os.Getenv("SANDBOX_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("SANDBOX_MAX_CLASSES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxClasses = i
		}
	}
	if v := os.Getenv("SANDBOX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SANDBOX_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Limits.MaxTotalBytes < int64(c.Limits.MaxClassBytes) {
		return fmt.Errorf("%w: limits.max_total_bytes is below limits.max_class_bytes", ErrInvalidConfig)
	}
	return nil
}

// ServiceConfig returns the sandbox.Service settings.
func (c Config) ServiceConfig() sandbox.ServiceConfig {
	return sandbox.ServiceConfig{
		Limits:    c.Limits,
		RateLimit: c.Server.RateLimit,
		RateBurst: c.Server.RateBurst,
	}
}

// CacheStoreConfig returns the cache.Store settings. Only meaningful when
// Cache.Enabled is set.
func (c Config) CacheStoreConfig() cache.Config {
	// Validated by Validate.
	compression, _ := cache.ParseCompression(c.Cache.Compression)
	if c.Cache.InMemory {
		cfg := cache.InMemoryConfig()
		cfg.Compression = compression
		cfg.TTL = c.Cache.TTL
		return cfg
	}
	cfg := cache.DefaultConfig(c.Cache.Path)
	cfg.Compression = compression
	cfg.TTL = c.Cache.TTL
	cfg.GCInterval = c.Cache.GCInterval
	return cfg
}

// LoggerConfig returns the logging settings for service.
func (c Config) LoggerConfig(service string) (logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.Dir,
		Service: service,
		Format:  logging.Format(c.Logging.Format),
	}, nil
}
