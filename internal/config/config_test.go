//
// Tencent is pleased to support the open source community by making trpc-phone-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-phone-agent is licensed under the Apache License Version 2.0.
//
//

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, 25, cfg.Agent.MaxSteps)
	assert.Equal(t, "en", cfg.Agent.Language)
	assert.True(t, cfg.Agent.Speculation)
	assert.Equal(t, 5, cfg.Agent.PlanningInterval)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "localhost:8089", cfg.Debug.Addr)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  name: qwen-vl-max
  base_url: https://example.com/v1
agent:
  max_steps: 10
  speculation: false
events:
  enabled: true
  path: /tmp/runs.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qwen-vl-max", cfg.Model.Name)
	assert.Equal(t, "https://example.com/v1", cfg.Model.BaseURL)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.False(t, cfg.Agent.Speculation)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "/tmp/runs.db", cfg.Events.Path)
	// Untouched keys keep defaults.
	assert.Equal(t, "en", cfg.Agent.Language)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  name: from-file\n"), 0o644))
	t.Setenv("PHONEAGENT_MODEL_NAME", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Model.Name)
}
