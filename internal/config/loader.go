package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigFileName is what the upward search looks for.
const ConfigFileName = "stepsync.yaml"

const envPrefix = "STEPSYNC"

// Loader handles Viper-based configuration loading.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a [Loader] with environment binding configured.
// Environment variables use the STEPSYNC_ prefix with underscores for
// nesting, e.g. STEPSYNC_SYNC_BRANCH overrides sync.branch.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Viper exposes the underlying viper instance so the cli package can bind
// flags into the same precedence chain.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads configuration from the first source found: the file named by
// STEPSYNC_CONFIG_PATH, a stepsync.yaml located by searching upward from
// the working directory, or the user config directory. Missing files fall
// back to [DefaultConfig] values; a present but malformed file is an error.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	if path := os.Getenv(envPrefix + "_CONFIG_PATH"); path != "" {
		return l.loadFile(path)
	}
	if path := findUpward(ConfigFileName); path != "" {
		return l.loadFile(path)
	}
	if dir, err := ConfigDir(); err == nil {
		path := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return l.loadFile(path)
		}
	}
	return l.unmarshal()
}

// LoadFromFile reads configuration from an explicit path.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.setDefaults()
	return l.loadFile(path)
}

func (l *Loader) loadFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers [DefaultConfig] values with viper so environment
// variables land on a complete key set.
func (l *Loader) setDefaults() {
	def := DefaultConfig()
	l.v.SetDefault("workflow.name", def.Workflow.Name)
	l.v.SetDefault("workflow.review_every_n", def.Workflow.ReviewEveryN)
	l.v.SetDefault("workflow.prompts.supervisor", def.Workflow.Prompts.Supervisor)
	l.v.SetDefault("workflow.prompts.main", def.Workflow.Prompts.Main)
	l.v.SetDefault("workflow.prompts.reviewer", def.Workflow.Prompts.Reviewer)
	l.v.SetDefault("workflow.iterations", def.Workflow.Iterations)
	l.v.SetDefault("sync.via_git", def.Sync.ViaGit)
	l.v.SetDefault("sync.no_git", def.Sync.NoGit)
	l.v.SetDefault("sync.branch", def.Sync.Branch)
	l.v.SetDefault("sync.poll_interval", def.Sync.PollInterval)
	l.v.SetDefault("sync.max_wait", def.Sync.MaxWait)
	l.v.SetDefault("sync.push_retries", def.Sync.PushRetries)
	l.v.SetDefault("router.enabled", def.Router.Enabled)
	l.v.SetDefault("router.mode", def.Router.Mode)
	l.v.SetDefault("router.prompt", def.Router.Prompt)
	l.v.SetDefault("dispatch.default", def.Dispatch.Default)
	l.v.SetDefault("dispatch.claude_cmd", def.Dispatch.ClaudeCmd)
	l.v.SetDefault("dispatch.codex_cmd", def.Dispatch.CodexCmd)
	l.v.SetDefault("dispatch.stream_json", def.Dispatch.StreamJSON)
	l.v.SetDefault("guard.tolerate_dirty", def.Guard.TolerateDirty)
	l.v.SetDefault("paths.state_file", def.Paths.StateFile)
	l.v.SetDefault("paths.prompts_dir", def.Paths.PromptsDir)
	l.v.SetDefault("paths.log_dir", def.Paths.LogDir)
	l.v.SetDefault("paths.tmp_dir", def.Paths.TmpDir)
}

// MustLoad loads configuration or panics. Intended for command wiring
// where a config failure should abort startup.
func MustLoad() *Config {
	cfg, err := NewLoader().Load()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

// ConfigDir returns the platform-standard stepsync config directory.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "stepsync"), nil
}

// DefaultConfigPath returns the full path of the user-level config file.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// EnsureConfigDir creates the user config directory if needed.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// findUpward searches for name starting at the working directory and
// walking toward the filesystem root.
func findUpward(name string) string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
