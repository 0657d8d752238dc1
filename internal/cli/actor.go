package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"stepsync/internal/agent"
	"stepsync/internal/config"
	"stepsync/internal/dispatch"
	"stepsync/internal/guard"
	"stepsync/internal/router"
	"stepsync/internal/runner"
	"stepsync/internal/state"
	"stepsync/internal/workflow"
)

func newSupervisorCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "supervisor",
		Short: "Run the supervisor actor (even step indices)",
		Long: `Run the supervisor side of the loop. The supervisor owns even step
indices: it waits for its turn, runs the supervisor (or routed) prompt,
settles the worktree, and stamps status waiting-next for the loop actor.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runActor(cmd, workflow.RoleSupervisor)
		},
	}
}

func newLoopCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "loop",
		Short: "Run the loop actor (odd step indices)",
		Long: `Run the engineering side of the loop. The loop actor owns odd step
indices: it waits for the supervisor's handoff, runs the main (or
reviewer) prompt, settles the worktree, and stamps status complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runActor(cmd, workflow.RoleLoop)
		},
	}
}

func (app *App) runActor(cmd *cobra.Command, role string) error {
	cmd.SilenceUsage = true
	r, err := app.buildRunner(role)
	if err != nil {
		return err
	}
	app.printer().Banner("stepsync %s on branch %s", role, r.Store.Branch)
	if err := r.Run(cmd.Context()); err != nil {
		app.printer().Error("%v", err)
		return NewExitError(ExitCodeFor(err))
	}
	return nil
}

// buildRunner assembles a [runner.Runner] for one role from the effective
// configuration. Validation failures here are configuration errors.
func (app *App) buildRunner(role string) (*runner.Runner, error) {
	cfg := app.Config
	port := app.port()

	branch, err := app.resolveBranch()
	if err != nil {
		return nil, err
	}

	wf, err := workflow.Get(cfg.Workflow.Name, workflow.Prompts{
		Supervisor: cfg.Workflow.Prompts.Supervisor,
		Main:       cfg.Workflow.Prompts.Main,
		Reviewer:   cfg.Workflow.Prompts.Reviewer,
	}, cfg.Workflow.ReviewEveryN)
	if err != nil {
		return nil, configErr(err)
	}

	rt, err := app.buildRouter()
	if err != nil {
		return nil, err
	}

	dispatchCfg, overrides, err := app.buildDispatch()
	if err != nil {
		return nil, err
	}

	policy, err := app.buildGuardPolicy()
	if err != nil {
		return nil, err
	}

	store := state.NewStore(port, cfg.Paths.StateFile, branch)
	store.MaxPushRetries = cfg.Sync.PushRetries
	store.Local = cfg.Sync.NoGit || !cfg.Sync.ViaGit

	printer := app.printer()
	executor := app.Executor
	if executor == nil {
		exe := &agent.ExecExecutor{
			ClaudeCmd:  cfg.Dispatch.ClaudeCmd,
			CodexCmd:   cfg.Dispatch.CodexCmd,
			StreamJSON: cfg.Dispatch.StreamJSON,
		}
		executor = exe
		if app.RouterQ == nil {
			app.RouterQ = exe
		}
	}

	return &runner.Runner{
		Role:         role,
		Config:       cfg,
		Store:        store,
		Port:         port,
		Workflow:     wf,
		Router:       rt,
		Dispatch:     dispatchCfg,
		Override:     overrides,
		Guard:        guard.NewGuard(port, role, printer.Dim),
		Policy:       policy,
		Executor:     executor,
		RouterQ:      app.RouterQ,
		Printer:      printer,
		RouterOutput: app.flags.routerOutput,
	}, nil
}

// resolveBranch picks the sync branch. With sync on the branch must be
// configured explicitly; the store aborts on a checkout mismatch before
// any pull or push. Without sync the name only labels log paths.
func (app *App) resolveBranch() (string, error) {
	if app.Config.Sync.NoGit || !app.Config.Sync.ViaGit {
		return "local", nil
	}
	if app.Config.Sync.Branch == "" {
		return "", configErr(errors.New("--branch is required when syncing state via git"))
	}
	return app.Config.Sync.Branch, nil
}

func (app *App) buildRouter() (*router.Router, error) {
	cfg := app.Config
	if !cfg.Router.Enabled {
		return nil, nil
	}
	rt := &router.Router{
		Enabled:    true,
		Mode:       cfg.Router.Mode,
		Prompt:     cfg.Router.Prompt,
		Allowlist:  cfg.Router.Allowlist,
		PromptsDir: cfg.Paths.PromptsDir,
	}
	if err := rt.Validate(); err != nil {
		return nil, configErr(err)
	}
	return rt, nil
}

func (app *App) buildDispatch() (dispatch.Config, dispatch.Overrides, error) {
	cfg := app.Config
	dcfg := dispatch.Config{
		Default:    dispatch.NormalizeAgent(cfg.Dispatch.Default),
		Roles:      cfg.Dispatch.Roles,
		Prompts:    cfg.Dispatch.Prompts,
		PromptsDir: cfg.Paths.PromptsDir,
	}

	roles, err := dispatch.ParseAgentMap(strings.Join(app.flags.agentRoles, ","), dispatch.NormalizeRole)
	if err != nil {
		return dispatch.Config{}, dispatch.Overrides{}, configErr(err)
	}
	prompts, err := dispatch.ParseAgentMap(strings.Join(app.flags.agentPrompts, ","), func(key string) string {
		return dispatch.CanonicalPromptKey(key, cfg.Paths.PromptsDir)
	})
	if err != nil {
		return dispatch.Config{}, dispatch.Overrides{}, configErr(err)
	}
	return dcfg, dispatch.Overrides{Roles: roles, Prompts: prompts}, nil
}

func (app *App) buildGuardPolicy() (guard.Policy, error) {
	cfg := app.Config

	skip := []string{cfg.Paths.LogDir, cfg.Paths.TmpDir}
	extra, err := guard.LoadSkipPrefixes(guard.SkipFileName)
	if err != nil {
		return guard.Policy{}, configErr(err)
	}
	skip = append(skip, extra...)

	return guard.Policy{
		TrackedOutputs: channelPolicy(cfg.Guard.TrackedOutputs),
		DocMeta:        channelPolicy(cfg.Guard.DocMeta),
		Reports:        channelPolicy(cfg.Guard.Reports),
		SkipPrefixes:   skip,
		IgnorePaths:    []string{filepath.ToSlash(cfg.Paths.StateFile)},
		TolerateDirty:  cfg.Guard.TolerateDirty,
		DryRun:         app.flags.dryRun,
	}, nil
}

func channelPolicy(c config.ChannelConfig) guard.ChannelPolicy {
	return guard.ChannelPolicy{
		Enabled:       c.Enabled,
		Globs:         c.Globs,
		Extensions:    c.Extensions,
		MaxFileBytes:  c.MaxFileBytes,
		MaxTotalBytes: c.MaxTotalBytes,
		ForceAdd:      c.ForceAdd,
	}
}

// configErr tags an error with the configuration exit code while keeping
// the original message.
func configErr(err error) error {
	return fmt.Errorf("%v (%w)", err, NewExitError(ExitConfig))
}
