package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, merges, validates, and returns ready-to-use
// configuration. Primary entry point for configuration loading.
//
// Steps performed:
//  1. Start from the built-in Defaults()
//  2. Load agentlens.yaml from configDir, expanding ${VAR}/$VAR
//  3. Merge the loaded YAML on top of the defaults (non-zero values override)
//  4. Validate the result
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.InfoContext(ctx, "initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.InfoContext(ctx, "configuration initialized",
		"server_addr", cfg.Server.Addr,
		"otlp_multi_tenant", cfg.OTLP.MultiTenant)
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	cfg := Defaults()
	cfg.configDir = configDir

	path := filepath.Join(configDir, "agentlens.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No file on disk is not fatal: defaults plus environment
			// expansion (handled per-field by the caller, e.g. DSNEnv)
			// are a complete, deployable configuration.
			return cfg, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	if err := mergo.Merge(cfg, &fileCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge agentlens.yaml: %w", err)
	}
	return cfg, nil
}
