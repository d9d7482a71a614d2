package main

import (
	"os"
	"strings"

	"miniq/internal/config"
)

// configEnv names the variable that overrides the config file location.
const configEnv = "MINIQ_CONFIG"

func configPathFromEnv() string {
	return strings.TrimSpace(os.Getenv(configEnv))
}

func loadConfig(path string) (*config.Config, error) {
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}
