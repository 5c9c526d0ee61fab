//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

// Package config loads CLI configuration. Precedence: environment
// (PHONEAGENT_*) over config file over defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full CLI configuration tree.
type Config struct {
	Model   ModelConfig   `mapstructure:"model"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Memory  MemoryConfig  `mapstructure:"memory"`
	Skills  SkillsConfig  `mapstructure:"skills"`
	Events  EventsConfig  `mapstructure:"events"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Debug   DebugConfig   `mapstructure:"debug"`
}

// ModelConfig selects the vision-language model endpoint.
type ModelConfig struct {
	Name    string `mapstructure:"name"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// AgentConfig tunes the loop.
type AgentConfig struct {
	MaxSteps         int    `mapstructure:"max_steps"`
	Language         string `mapstructure:"language"`
	Speculation      bool   `mapstructure:"speculation"`
	PlanningInterval int    `mapstructure:"planning_interval"`
}

// MemoryConfig locates the episodic memory store.
type MemoryConfig struct {
	Dir string `mapstructure:"dir"`
}

// SkillsConfig locates the skill library.
type SkillsConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

// EventsConfig enables the SQLite run-event store.
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig enables the otel metric exporter.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// DebugConfig enables the debug HTTP server.
type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.name", "gpt-4o")
	v.SetDefault("agent.max_steps", 25)
	v.SetDefault("agent.language", "en")
	v.SetDefault("agent.speculation", true)
	v.SetDefault("agent.planning_interval", 5)
	v.SetDefault("memory.dir", defaultDir("memory"))
	v.SetDefault("skills.dir", defaultDir("skills"))
	v.SetDefault("skills.watch", false)
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.path", defaultDir("runs.db"))
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.addr", "localhost:8089")
}

func defaultDir(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return home + "/.phoneagent/" + name
}

// Load reads configuration from the given file path. An empty path skips
// the file layer; a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PHONEAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
