package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML configuration file. Every field has a
// working default so the server boots with no file at all; environment
// variables override the file where noted.
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Snapshot struct {
		DebounceMs int `yaml:"debounce_ms"`
	} `yaml:"snapshot"`
	Relay struct {
		Enabled      bool   `yaml:"enabled"`
		URL          string `yaml:"url"`
		StateSubject string `yaml:"state_subject"`
		CmdSubject   string `yaml:"cmd_subject"`
	} `yaml:"relay"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Snapshot.DebounceMs = 1000
	cfg.Relay.StateSubject = "scoreboard.state"
	cfg.Relay.CmdSubject = "scoreboard.cmd"
	return cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Snapshot.DebounceMs <= 0 {
		cfg.Snapshot.DebounceMs = 1000
	}
	return cfg, nil
}

func (c *Config) snapshotDebounce() time.Duration {
	return time.Duration(c.Snapshot.DebounceMs) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
