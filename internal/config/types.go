// Package config provides configuration loading and management for stepsync.
//
// Configuration is loaded using Viper, supporting YAML config files and
// environment variable overrides. The package provides defaults that work
// out of the box for a two-actor supervised loop, with the ability to
// customize the workflow cadence, router, dispatch table, and auto-commit
// policies.
//
// Configuration priority (highest to lowest):
//  1. Command-line flags (bound by the cli package)
//  2. Environment variables (STEPSYNC_ prefix)
//  3. Config file specified by STEPSYNC_CONFIG_PATH
//  4. stepsync.yaml found by searching upward from the working directory
//  5. User config directory (e.g. ~/.config/stepsync/stepsync.yaml)
//  6. [DefaultConfig] defaults
package config

import "time"

// Config is the root configuration container loaded by [Loader].
type Config struct {
	// Workflow selects and tunes the step sequence.
	Workflow WorkflowConfig `mapstructure:"workflow"`

	// Sync controls the git transport between the two actors.
	Sync SyncConfig `mapstructure:"sync"`

	// Router configures the optional prompt-override stage.
	Router RouterConfig `mapstructure:"router"`

	// Dispatch maps steps and prompts to agent CLIs.
	Dispatch DispatchConfig `mapstructure:"dispatch"`

	// Guard configures the auto-commit passes run before each handoff.
	Guard GuardConfig `mapstructure:"guard"`

	// Paths locates the state document, prompts, and logs.
	Paths PathsConfig `mapstructure:"paths"`
}

// WorkflowConfig selects the step sequence and review cadence.
type WorkflowConfig struct {
	// Name is the workflow to run: "standard" or "review_cadence".
	Name string `mapstructure:"name"`

	// ReviewEveryN substitutes the reviewer prompt every Nth cycle.
	// Zero disables the cadence.
	ReviewEveryN int `mapstructure:"review_every_n"`

	// Iterations bounds how many turns this actor takes before exiting.
	// Zero means run until the peer signals completion.
	Iterations int `mapstructure:"iterations"`

	// Prompts overrides the default prompt file names.
	Prompts PromptsConfig `mapstructure:"prompts"`
}

// PromptsConfig names the prompt files relative to the prompts directory.
type PromptsConfig struct {
	Supervisor string `mapstructure:"supervisor"`
	Main       string `mapstructure:"main"`
	Reviewer   string `mapstructure:"reviewer"`
}

// SyncConfig controls the git transport.
type SyncConfig struct {
	// ViaGit enables pull/commit/push synchronization of the state
	// document. When false the document lives on local disk only;
	// evidence auto-commits still land as local git commits.
	ViaGit bool `mapstructure:"via_git"`

	// NoGit disables git entirely: no commits, no pushes, no branch
	// checks. Implies the state document is local.
	NoGit bool `mapstructure:"no_git"`

	// Branch must match the repository's current branch when sync is on;
	// a mismatch aborts the run before touching anything.
	Branch string `mapstructure:"branch"`

	// PollInterval is the sleep between pull attempts while waiting for
	// the peer's turn.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// MaxWait bounds the total wait for the peer. Zero waits forever.
	MaxWait time.Duration `mapstructure:"max_wait"`

	// PushRetries bounds rebase-and-retry attempts after a rejected push.
	PushRetries int `mapstructure:"push_retries"`
}

// RouterConfig configures the prompt-override stage.
type RouterConfig struct {
	// Enabled turns the router stage on.
	Enabled bool `mapstructure:"enabled"`

	// Mode is one of "router_default", "router_first", "router_only".
	Mode string `mapstructure:"mode"`

	// Prompt is the router prompt file posed to the agent.
	Prompt string `mapstructure:"prompt"`

	// Allowlist restricts which prompts the router may select. Empty
	// means any existing prompt file.
	Allowlist []string `mapstructure:"allowlist"`
}

// DispatchConfig maps steps and prompts to agent CLIs.
type DispatchConfig struct {
	// Default is the agent used when nothing more specific matches:
	// "claude", "codex", or "auto".
	Default string `mapstructure:"default"`

	// Roles maps step names (supervisor, main, reviewer) to agents.
	Roles map[string]string `mapstructure:"roles"`

	// Prompts maps prompt file names to agents. Beats Roles.
	Prompts map[string]string `mapstructure:"prompts"`

	// ClaudeCmd and CodexCmd override agent binary resolution.
	ClaudeCmd string `mapstructure:"claude_cmd"`
	CodexCmd  string `mapstructure:"codex_cmd"`

	// StreamJSON runs Claude in stream-json mode with plain-text
	// rendering of the event stream.
	StreamJSON bool `mapstructure:"stream_json"`
}

// GuardConfig configures the pre-handoff auto-commit passes.
type GuardConfig struct {
	TrackedOutputs ChannelConfig `mapstructure:"tracked_outputs"`
	DocMeta        ChannelConfig `mapstructure:"doc_meta"`
	Reports        ChannelConfig `mapstructure:"reports"`

	// TolerateDirty downgrades dirty-tree violations to warnings.
	TolerateDirty bool `mapstructure:"tolerate_dirty"`
}

// ChannelConfig scopes one auto-commit pass.
type ChannelConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Globs         []string `mapstructure:"globs"`
	Extensions    []string `mapstructure:"extensions"`
	MaxFileBytes  int64    `mapstructure:"max_file_bytes"`
	MaxTotalBytes int64    `mapstructure:"max_total_bytes"`
	ForceAdd      bool     `mapstructure:"force_add"`
}

// PathsConfig locates the working files.
type PathsConfig struct {
	// StateFile is the shared state document, relative to the repo root.
	StateFile string `mapstructure:"state_file"`

	// PromptsDir holds the prompt files.
	PromptsDir string `mapstructure:"prompts_dir"`

	// LogDir receives per-step agent logs. Never auto-committed.
	LogDir string `mapstructure:"log_dir"`

	// TmpDir is scratch space. Never auto-committed.
	TmpDir string `mapstructure:"tmp_dir"`
}

// DefaultConfig returns a new [Config] with working defaults: the
// standard two-step workflow synced via git, report and doc auto-commit
// enabled with conservative size caps, and agent auto-selection.
func DefaultConfig() *Config {
	return &Config{
		Workflow: WorkflowConfig{
			Name: "standard",
			Prompts: PromptsConfig{
				Supervisor: "supervisor.md",
				Main:       "main.md",
				Reviewer:   "reviewer.md",
			},
		},
		Sync: SyncConfig{
			ViaGit:       true,
			PollInterval: 5 * time.Second,
			PushRetries:  3,
		},
		Router: RouterConfig{
			Mode: "router_default",
		},
		Dispatch: DispatchConfig{
			Default:  "auto",
			CodexCmd: "codex",
		},
		Guard: GuardConfig{
			TrackedOutputs: ChannelConfig{
				Enabled: true,
				Globs: []string{
					"tests/fixtures/**/*.npy",
					"tests/fixtures/**/*.npz",
					"tests/fixtures/**/*.json",
					"tests/fixtures/**/*.pkl",
				},
				Extensions:   []string{".npy", ".npz", ".json", ".pkl"},
				MaxFileBytes: 5 * 1024 * 1024,
			},
			DocMeta: ChannelConfig{
				Enabled: true,
				Globs: []string{
					"input.md",
					"docs/**/*.md",
					"plans/**/*.md",
					"prompts/**/*.md",
					".gitignore",
					".gitmodules",
					".gitattributes",
				},
				MaxFileBytes: 1024 * 1024,
			},
			Reports: ChannelConfig{
				Enabled: true,
				Extensions: []string{
					".png", ".jpeg", ".npy", ".txt", ".md",
					".json", ".log", ".py", ".c", ".h", ".sh",
				},
				MaxFileBytes:  5 * 1024 * 1024,
				MaxTotalBytes: 20 * 1024 * 1024,
				ForceAdd:      true,
			},
		},
		Paths: PathsConfig{
			StateFile:  "sync/state.json",
			PromptsDir: "prompts",
			LogDir:     "logs",
			TmpDir:     "tmp",
		},
	}
}
