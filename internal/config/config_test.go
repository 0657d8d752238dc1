package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "standard", cfg.Workflow.Name)
	assert.Equal(t, "supervisor.md", cfg.Workflow.Prompts.Supervisor)
	assert.Equal(t, "main.md", cfg.Workflow.Prompts.Main)
	assert.Equal(t, "reviewer.md", cfg.Workflow.Prompts.Reviewer)

	assert.True(t, cfg.Sync.ViaGit)
	assert.Equal(t, 5*time.Second, cfg.Sync.PollInterval)
	assert.Zero(t, cfg.Sync.MaxWait, "no wait bound unless configured")
	assert.Equal(t, 3, cfg.Sync.PushRetries)

	assert.False(t, cfg.Router.Enabled)
	assert.Equal(t, "router_default", cfg.Router.Mode)

	assert.Equal(t, "auto", cfg.Dispatch.Default)
	assert.Equal(t, "sync/state.json", cfg.Paths.StateFile)
	assert.Equal(t, "prompts", cfg.Paths.PromptsDir)
	assert.Equal(t, "logs", cfg.Paths.LogDir)
}

func TestDefaultConfig_GuardChannels(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Guard.TrackedOutputs.Enabled)
	assert.Contains(t, cfg.Guard.TrackedOutputs.Extensions, ".json")

	assert.True(t, cfg.Guard.DocMeta.Enabled)
	assert.Contains(t, cfg.Guard.DocMeta.Globs, "plans/**/*.md")

	assert.True(t, cfg.Guard.Reports.Enabled)
	assert.True(t, cfg.Guard.Reports.ForceAdd)
	assert.Equal(t, int64(5*1024*1024), cfg.Guard.Reports.MaxFileBytes)
	assert.Equal(t, int64(20*1024*1024), cfg.Guard.Reports.MaxTotalBytes)

	assert.False(t, cfg.Guard.TolerateDirty)
}

func TestLoader_LoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
workflow:
  name: review_cadence
  review_every_n: 3
sync:
  branch: main
  poll_interval: 30s
router:
  enabled: true
  mode: router_first
  prompt: router.md
  allowlist: [main.md, reviewer.md]
dispatch:
  default: claude
  roles:
    reviewer: codex
`
	err := os.WriteFile(configPath, []byte(configContent), 0o644)
	require.NoError(t, err)

	loader := NewLoader()
	cfg, err := loader.LoadFromFile(configPath)

	require.NoError(t, err)
	assert.Equal(t, "review_cadence", cfg.Workflow.Name)
	assert.Equal(t, 3, cfg.Workflow.ReviewEveryN)
	assert.Equal(t, "main", cfg.Sync.Branch)
	assert.Equal(t, 30*time.Second, cfg.Sync.PollInterval)
	assert.True(t, cfg.Router.Enabled)
	assert.Equal(t, "router_first", cfg.Router.Mode)
	assert.Equal(t, []string{"main.md", "reviewer.md"}, cfg.Router.Allowlist)
	assert.Equal(t, "claude", cfg.Dispatch.Default)
	assert.Equal(t, "codex", cfg.Dispatch.Roles["reviewer"])
}

func TestLoader_LoadFromFile_PreservesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sparse.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("sync:\n  branch: develop\n"), 0o644))

	loader := NewLoader()
	cfg, err := loader.LoadFromFile(configPath)

	require.NoError(t, err)
	assert.Equal(t, "develop", cfg.Sync.Branch)
	assert.Equal(t, "standard", cfg.Workflow.Name, "unset keys keep defaults")
	assert.Equal(t, "sync/state.json", cfg.Paths.StateFile)
}

func TestLoader_Load_WithEnvOverride(t *testing.T) {
	t.Setenv("STEPSYNC_SYNC_BRANCH", "release")

	tmpDir := t.TempDir()
	originalWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(originalWd)

	loader := NewLoader()
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Sync.Branch)
}

func TestLoader_Load_WithConfigPathEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "custom.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("workflow:\n  name: review_cadence\n"), 0o644))

	t.Setenv("STEPSYNC_CONFIG_PATH", configPath)

	loader := NewLoader()
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "review_cadence", cfg.Workflow.Name)
}

func TestLoader_Load_UpwardSearch(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte("sync:\n  branch: found-above\n"), 0o644))

	originalWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	defer os.Chdir(originalWd)

	loader := NewLoader()
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "found-above", cfg.Sync.Branch)
}

func TestLoader_Load_DefaultsWithNoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	originalWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(originalWd)

	loader := NewLoader()
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "standard", cfg.Workflow.Name)
	assert.Equal(t, 5*time.Second, cfg.Sync.PollInterval)
}

func TestLoader_LoadFromFile_NonExistent(t *testing.T) {
	loader := NewLoader()
	_, err := loader.LoadFromFile("/nonexistent/path/config.yaml")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoader_LoadFromFile_InvalidStructure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("workflow: [not, a, mapping]\n"), 0o644))

	loader := NewLoader()
	_, err := loader.LoadFromFile(configPath)
	assert.Error(t, err)
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	assert.NotNil(t, loader)
	assert.NotNil(t, loader.v)
}

func TestConfigDir(t *testing.T) {
	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Contains(t, dir, "stepsync")
}

func TestDefaultConfigPath(t *testing.T) {
	path, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Contains(t, path, "stepsync")
	assert.Contains(t, path, ConfigFileName)
}
