// Package cli wires the stepsync commands.
//
// The command set drives a two-actor turn protocol: "supervisor" and
// "loop" each run one side against a shared state document synchronized
// through git, "run" drives both sides in one process, "route" previews
// the router decision, and "status" prints the state document.
//
// [App] carries the injected dependencies so tests can swap the agent
// executor and git port for in-memory fakes.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stepsync/internal/config"
	"stepsync/internal/gitport"
	"stepsync/internal/output"
	"stepsync/internal/runner"
)

// App holds the dependencies shared by all commands.
type App struct {
	// Config is the effective configuration; flags overlay it in the
	// root command's PersistentPreRun.
	Config *config.Config

	// Printer renders all user-facing output.
	Printer *output.Printer

	// Executor runs step prompts; nil builds an [agent.ExecExecutor].
	Executor runner.StepExecutor

	// RouterQ runs router prompts; nil reuses the step executor.
	RouterQ runner.RouterQuerier

	// Port overrides transport construction; nil picks [gitport.Git] or
	// [gitport.Noop] from the sync configuration.
	Port gitport.Port

	// flag state carried from parse to command execution
	flags rootFlags
}

type rootFlags struct {
	configPath    string
	stateFile     string
	promptsDir    string
	logDir        string
	branch        string
	noGit         bool
	syncViaGit    bool
	verbose       bool
	pollInterval  time.Duration
	maxWait       time.Duration
	iterations    int
	workflowName  string
	reviewEveryN  int
	useRouter     bool
	routerMode    string
	routerPrompt  string
	routerAllow   []string
	routerOutput  string
	agentID       string
	agentRoles    []string
	agentPrompts  []string
	claudeCmd     string
	codexCmd      string
	streamJSON    bool
	tolerateDirty bool
	dryRun        bool

	promptSupervisor string
	promptMain       string
	promptReviewer   string

	commitTracked   bool
	commitDocs      bool
	commitReports   bool
	trackedGlobs    []string
	docWhitelist    []string
	reportGlobs     []string
	reportExts      []string
	maxFileBytes    int64
	maxTotalBytes   int64
	forceAddReports bool
}

// NewRootCommand builds the stepsync root command with all subcommands
// and persistent flags attached.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "stepsync",
		Short: "Synchronize two coding agents through a shared git state document",
		Long: `stepsync coordinates a supervisor agent and a loop agent working the
same repository from different machines. The actors take strict turns:
a JSON state document carried by git commits says whose turn it is, and
each side polls until the step index parity points at it.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.loadConfig(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&app.flags.configPath, "config", "", "config file path (default: search for stepsync.yaml)")
	f.StringVar(&app.flags.stateFile, "state-file", "", "state document path")
	f.StringVar(&app.flags.promptsDir, "prompts-dir", "", "prompt files directory")
	f.StringVar(&app.flags.logDir, "logdir", "", "agent log directory")
	f.StringVar(&app.flags.branch, "branch", "", "required git branch; mismatch aborts")
	f.BoolVar(&app.flags.noGit, "no-git", false, "disable git entirely: no commits, pushes, or branch checks")
	f.BoolVar(&app.flags.syncViaGit, "sync-via-git", true, "synchronize the state document through git commits")
	f.BoolVarP(&app.flags.verbose, "verbose", "v", false, "print polling and auto-commit detail")
	f.DurationVar(&app.flags.pollInterval, "poll-interval", 0, "sleep between turn polls")
	f.DurationVar(&app.flags.maxWait, "max-wait", 0, "bound on waiting for the peer (0 = forever)")
	f.IntVar(&app.flags.iterations, "iterations", 0, "turns to take before exiting (0 = until stopped)")
	f.StringVar(&app.flags.workflowName, "workflow", "", "workflow name: standard or review_cadence")
	f.IntVar(&app.flags.reviewEveryN, "review-every-n", 0, "reviewer cadence in cycles (0 = off)")
	f.BoolVar(&app.flags.useRouter, "router", false, "enable the prompt-override router")
	f.StringVar(&app.flags.routerMode, "router-mode", "", "router mode: router_default, router_first, router_only")
	f.StringVar(&app.flags.routerPrompt, "router-prompt", "", "router prompt file")
	f.StringSliceVar(&app.flags.routerAllow, "router-allowlist", nil, "prompts the router may select")
	f.StringVar(&app.flags.routerOutput, "router-output", "", "use this router output instead of querying an agent")
	f.StringVar(&app.flags.agentID, "agent", "", "agent for every step: claude, codex, auto")
	f.StringSliceVar(&app.flags.agentRoles, "agent-role", nil, "per-step agent overrides, step=agent")
	f.StringSliceVar(&app.flags.agentPrompts, "agent-prompt", nil, "per-prompt agent overrides, prompt=agent")
	f.StringVar(&app.flags.claudeCmd, "claude-cmd", "", "claude CLI binary override")
	f.StringVar(&app.flags.codexCmd, "codex-cmd", "", "codex CLI binary override")
	f.BoolVar(&app.flags.streamJSON, "stream-json", false, "render claude stream-json output as text")
	f.BoolVar(&app.flags.tolerateDirty, "tolerate-dirty", false, "warn instead of failing on uncovered dirty paths")
	f.BoolVar(&app.flags.dryRun, "dry-run", false, "log auto-commit decisions without staging")
	f.StringVar(&app.flags.promptSupervisor, "prompt-supervisor", "", "supervisor step prompt file")
	f.StringVar(&app.flags.promptMain, "prompt-main", "", "main step prompt file")
	f.StringVar(&app.flags.promptReviewer, "prompt-reviewer", "", "reviewer step prompt file")
	f.BoolVar(&app.flags.commitTracked, "auto-commit-tracked", true, "commit dirty tracked outputs before handoff (=false to disable)")
	f.BoolVar(&app.flags.commitDocs, "auto-commit-docs", true, "commit whitelisted doc and meta files before handoff (=false to disable)")
	f.BoolVar(&app.flags.commitReports, "auto-commit-reports", true, "commit report evidence before handoff (=false to disable)")
	f.StringSliceVar(&app.flags.trackedGlobs, "tracked-globs", nil, "globs for the tracked-outputs channel")
	f.StringSliceVar(&app.flags.docWhitelist, "doc-whitelist", nil, "globs for the doc-meta channel")
	f.StringSliceVar(&app.flags.reportGlobs, "report-globs", nil, "globs for the reports channel")
	f.StringSliceVar(&app.flags.reportExts, "report-extensions", nil, "extensions for the reports channel")
	f.Int64Var(&app.flags.maxFileBytes, "max-file-bytes", 0, "per-file size cap for auto-commits")
	f.Int64Var(&app.flags.maxTotalBytes, "max-total-bytes", 0, "per-channel total size cap for auto-commits")
	f.BoolVar(&app.flags.forceAddReports, "force-add-reports", true, "git add -f report files past .gitignore (=false to disable)")

	root.AddCommand(
		newSupervisorCommand(app),
		newLoopCommand(app),
		newRunCommand(app),
		newRouteCommand(app),
		newStatusCommand(app),
		newVersionCommand(app),
	)
	return root
}

// loadConfig loads configuration (unless the test injected one) and
// overlays any flags the user actually set.
func (app *App) loadConfig(cmd *cobra.Command) error {
	if app.Config == nil {
		loader := config.NewLoader()
		var cfg *config.Config
		var err error
		if app.flags.configPath != "" {
			cfg, err = loader.LoadFromFile(app.flags.configPath)
		} else {
			cfg, err = loader.Load()
		}
		if err != nil {
			return fmt.Errorf("%v (%w)", err, NewExitError(ExitConfig))
		}
		app.Config = cfg
	}
	app.overlayFlags(cmd)
	app.printer().SetVerbose(app.flags.verbose)
	return nil
}

// overlayFlags copies explicitly-set flags over the loaded config. Flags
// beat the file and the environment.
func (app *App) overlayFlags(cmd *cobra.Command) {
	cfg := app.Config
	set := cmd.Flags().Changed

	if set("state-file") {
		cfg.Paths.StateFile = app.flags.stateFile
	}
	if set("prompts-dir") {
		cfg.Paths.PromptsDir = app.flags.promptsDir
	}
	if set("logdir") {
		cfg.Paths.LogDir = app.flags.logDir
	}
	if set("branch") {
		cfg.Sync.Branch = app.flags.branch
	}
	if set("sync-via-git") {
		cfg.Sync.ViaGit = app.flags.syncViaGit
	}
	if set("no-git") {
		cfg.Sync.NoGit = app.flags.noGit
	}
	if set("poll-interval") {
		cfg.Sync.PollInterval = app.flags.pollInterval
	}
	if set("max-wait") {
		cfg.Sync.MaxWait = app.flags.maxWait
	}
	if set("iterations") {
		cfg.Workflow.Iterations = app.flags.iterations
	}
	if set("workflow") {
		cfg.Workflow.Name = app.flags.workflowName
	}
	if set("review-every-n") {
		cfg.Workflow.ReviewEveryN = app.flags.reviewEveryN
	}
	if set("prompt-supervisor") {
		cfg.Workflow.Prompts.Supervisor = app.flags.promptSupervisor
	}
	if set("prompt-main") {
		cfg.Workflow.Prompts.Main = app.flags.promptMain
	}
	if set("prompt-reviewer") {
		cfg.Workflow.Prompts.Reviewer = app.flags.promptReviewer
	}
	if set("router") {
		cfg.Router.Enabled = app.flags.useRouter
	}
	if set("router-mode") {
		cfg.Router.Mode = app.flags.routerMode
	}
	if set("router-prompt") {
		cfg.Router.Prompt = app.flags.routerPrompt
	}
	if set("router-allowlist") {
		cfg.Router.Allowlist = app.flags.routerAllow
	}
	if set("agent") {
		cfg.Dispatch.Default = app.flags.agentID
	}
	if set("claude-cmd") {
		cfg.Dispatch.ClaudeCmd = app.flags.claudeCmd
	}
	if set("codex-cmd") {
		cfg.Dispatch.CodexCmd = app.flags.codexCmd
	}
	if set("stream-json") {
		cfg.Dispatch.StreamJSON = app.flags.streamJSON
	}
	if set("tolerate-dirty") {
		cfg.Guard.TolerateDirty = app.flags.tolerateDirty
	}
	if set("auto-commit-tracked") {
		cfg.Guard.TrackedOutputs.Enabled = app.flags.commitTracked
	}
	if set("auto-commit-docs") {
		cfg.Guard.DocMeta.Enabled = app.flags.commitDocs
	}
	if set("auto-commit-reports") {
		cfg.Guard.Reports.Enabled = app.flags.commitReports
	}
	if set("tracked-globs") {
		cfg.Guard.TrackedOutputs.Globs = app.flags.trackedGlobs
	}
	if set("doc-whitelist") {
		cfg.Guard.DocMeta.Globs = app.flags.docWhitelist
	}
	if set("report-globs") {
		cfg.Guard.Reports.Globs = app.flags.reportGlobs
	}
	if set("report-extensions") {
		cfg.Guard.Reports.Extensions = app.flags.reportExts
	}
	if set("max-file-bytes") {
		for _, ch := range []*config.ChannelConfig{&cfg.Guard.TrackedOutputs, &cfg.Guard.DocMeta, &cfg.Guard.Reports} {
			ch.MaxFileBytes = app.flags.maxFileBytes
		}
	}
	if set("max-total-bytes") {
		for _, ch := range []*config.ChannelConfig{&cfg.Guard.TrackedOutputs, &cfg.Guard.DocMeta, &cfg.Guard.Reports} {
			ch.MaxTotalBytes = app.flags.maxTotalBytes
		}
	}
	if set("force-add-reports") {
		cfg.Guard.Reports.ForceAdd = app.flags.forceAddReports
	}
}

func (app *App) printer() *output.Printer {
	if app.Printer == nil {
		app.Printer = output.NewPrinter()
	}
	return app.Printer
}

// port picks the transport. Only --no-git drops to the no-op port;
// disabling state sync keeps the real git port so evidence auto-commits
// still land locally.
func (app *App) port() gitport.Port {
	if app.Port != nil {
		return app.Port
	}
	if app.Config.Sync.NoGit {
		return gitport.Noop{}
	}
	return &gitport.Git{}
}
