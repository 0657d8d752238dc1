// Package runner drives one actor's side of the synchronized loop.
//
// A [Runner] executes turns for a single role: wait until the shared
// state document says it is this actor's turn, publish a running marker,
// select and possibly route the step prompt, dispatch the agent, settle
// the worktree through the handoff guard, then stamp and push the
// advanced state. Turn ownership is derived from step index parity, never
// stored: even indices belong to the supervisor, odd to the loop actor.
//
// Failures stamp status "failed" without advancing the step index so the
// same actor retries the same step on relaunch.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"stepsync/internal/config"
	"stepsync/internal/dispatch"
	"stepsync/internal/gitport"
	"stepsync/internal/guard"
	"stepsync/internal/output"
	"stepsync/internal/router"
	"stepsync/internal/state"
	"stepsync/internal/workflow"
)

// ErrPollTimeout indicates the peer did not take its turn within the
// configured wait bound.
var ErrPollTimeout = errors.New("timed out waiting for peer's turn")

// ErrExitSignal indicates the state document carries an operator exit
// request. The runner stops cleanly.
var ErrExitSignal = errors.New("exit signal set in state document")

// StepFailedError reports a non-zero agent exit for a step.
type StepFailedError struct {
	Prompt string
	Code   int
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %s failed with exit code %d", e.Prompt, e.Code)
}

// StepExecutor runs an agent against a step prompt. Satisfied by
// [agent.ExecExecutor] and [agent.MockExecutor].
type StepExecutor interface {
	Run(ctx context.Context, agentID, promptPath, logPath string) (int, error)
}

// RouterQuerier runs an agent in router mode and returns its raw reply.
type RouterQuerier interface {
	Query(ctx context.Context, agentID, promptPath, logPath string) (string, error)
}

// Runner executes turns for one role.
type Runner struct {
	Role     string
	Config   *config.Config
	Store    *state.Store
	Port     gitport.Port
	Workflow *workflow.Workflow
	Router   *router.Router
	Dispatch dispatch.Config
	Override dispatch.Overrides
	Guard    *guard.Guard
	Policy   guard.Policy
	Executor StepExecutor
	RouterQ  RouterQuerier
	Printer  *output.Printer

	// RouterOutput, when non-empty, is used instead of querying the
	// router agent. Supports route preview and scripted runs.
	RouterOutput string

	// Sleep and Now are injectable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes turns until the iteration bound is reached, an exit signal
// appears, or a fatal error occurs. A nil return means the actor finished
// its quota or was asked to stop.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Store.CheckBranch(); err != nil {
		return err
	}

	iterations := r.Config.Workflow.Iterations
	for turn := 0; iterations == 0 || turn < iterations; turn++ {
		if err := r.runTurn(ctx); err != nil {
			if errors.Is(err, ErrExitSignal) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (r *Runner) runTurn(ctx context.Context) error {
	if err := r.checkExitSignal(); err != nil {
		return err
	}

	reconciled, err := r.reconcilePending()
	if err != nil {
		return err
	}
	if reconciled {
		return nil
	}

	st, err := r.waitForTurn(ctx)
	if err != nil {
		return err
	}

	step, err := r.Workflow.Select(st.StepIndex)
	if err != nil {
		return err
	}

	if err := r.markRunning(st, step); err != nil {
		return err
	}

	promptName, err := r.routePrompt(ctx, step)
	if err != nil {
		return err
	}

	agentID, err := dispatch.Resolve(step.Name, promptName, r.Dispatch, r.Override)
	if err != nil {
		return err
	}

	promptPath := router.ResolvePromptPath(promptName, r.Config.Paths.PromptsDir)
	if _, statErr := os.Stat(promptPath); statErr != nil {
		return fmt.Errorf("prompt file not found: %s", promptPath)
	}

	logPath := r.logPath(promptName)
	r.Printer.Step(r.Role, st.Iteration, step.Name, promptName)

	code, err := r.Executor.Run(ctx, agentID, promptPath, logPath)
	if err != nil {
		return err
	}

	if _, err := r.Guard.Settle(r.Policy); err != nil {
		return err
	}

	return r.stampAndPublish(st, step, promptName, code)
}

// checkExitSignal reads the local state document without pulling; the
// polling loop keeps it fresh between turns.
func (r *Runner) checkExitSignal() error {
	st := state.Read(r.Store.Path)
	if st.Exit {
		reason := st.ExitReason
		if reason == "" {
			reason = "exit flag set"
		}
		r.Printer.Info("exiting: %s", reason)
		return ErrExitSignal
	}
	return nil
}

// reconcilePending publishes a stamped handoff that never left this
// machine. After a crash between commit and push, the local state may
// already belong to the peer; pushing it is the whole remaining turn, so
// the caller skips straight to the next one.
func (r *Runner) reconcilePending() (bool, error) {
	st := state.Read(r.Store.Path)
	ours := workflow.RoleFor(st.StepIndex) == r.Role
	if ours && st.Status != state.StatusComplete && st.Status != state.StatusFailed {
		return false, nil
	}
	pending, err := r.Store.HasPendingHandoff()
	if err != nil {
		return false, err
	}
	if !pending {
		return false, nil
	}
	r.Printer.Dim("found local stamped handoff with unpushed commits; pushing")
	if err := r.Store.PushPending(); err != nil {
		return false, err
	}
	return true, nil
}

// waitForTurn polls the transport until step index parity hands the turn
// to this role, honoring the poll interval and wait bound.
func (r *Runner) waitForTurn(ctx context.Context) (*state.State, error) {
	r.Printer.Dim("[%s] waiting for turn...", r.Role)
	start := r.now()
	for {
		st, err := r.Store.Load()
		if err != nil {
			return nil, err
		}
		if workflow.RoleFor(st.StepIndex) == r.Role {
			return st, nil
		}
		if st.Exit {
			return nil, ErrExitSignal
		}
		maxWait := r.Config.Sync.MaxWait
		if maxWait > 0 && r.now().Sub(start) > maxWait {
			return nil, fmt.Errorf("%w after %s", ErrPollTimeout, maxWait)
		}
		if err := r.sleep(ctx, r.Config.Sync.PollInterval); err != nil {
			return nil, err
		}
	}
}

// markRunning publishes a running marker so the peer (and operators) can
// see the turn was claimed. The step index does not move; no prompt has
// run yet, so the marker message names none.
func (r *Runner) markRunning(st *state.State, step workflow.Step) error {
	st.Apply(state.Stamp{Status: state.StatusRunning, ExpectedStep: step.Prompt})
	msg := state.CommitMessage(r.Role, "", st.Iteration, st.Status)
	return r.Store.Save(st, msg)
}

// routePrompt applies the router stage to the deterministic selection.
func (r *Runner) routePrompt(ctx context.Context, step workflow.Step) (string, error) {
	deterministic := step.Prompt
	if r.Router == nil || !r.Router.Enabled {
		return deterministic, nil
	}

	routerOutput := r.RouterOutput
	if routerOutput == "" && r.Router.Prompt != "" && r.RouterQ != nil {
		routerPromptPath := router.ResolvePromptPath(r.Router.Prompt, r.Config.Paths.PromptsDir)
		if _, err := os.Stat(routerPromptPath); err != nil {
			return "", fmt.Errorf("router prompt not found: %s", routerPromptPath)
		}
		agentID, err := dispatch.Resolve(step.Name, r.Router.Prompt, r.Dispatch, r.Override)
		if err != nil {
			return "", err
		}
		out, err := r.RouterQ.Query(ctx, agentID, routerPromptPath, r.logPath(r.Router.Prompt))
		if err != nil {
			return "", err
		}
		routerOutput = out
	}

	decision, err := r.Router.Apply(deterministic, routerOutput, func(path string) bool {
		_, statErr := os.Stat(path)
		return statErr == nil
	})
	if err != nil {
		return "", err
	}
	if decision.Source != router.SourceDeterministic {
		r.Printer.Info("router override: %s (%s)", decision.Prompt, decision.Reason)
	}
	return decision.Prompt, nil
}

// stampAndPublish writes the handoff stamp and pushes state plus evidence
// in one publish. Stamp first, push second: a crash in between is healed
// by reconcilePending on the next launch. expected_step records the
// sequencer's deterministic selection; last_prompt names what actually
// ran, and only when override routing is on.
func (r *Runner) stampAndPublish(st *state.State, step workflow.Step, promptName string, code int) error {
	sha, err := r.Port.ShortHead()
	if err != nil {
		return err
	}

	stamp := state.Stamp{ExpectedStep: step.Prompt}
	if r.Router != nil && r.Router.Enabled {
		stamp.LastPrompt = promptName
	}
	if code == 0 {
		if r.Role == workflow.RoleSupervisor {
			stamp.Status = state.StatusWaitingNext
			stamp.GalphCommit = sha
		} else {
			stamp.Status = state.StatusComplete
			stamp.RalphCommit = sha
		}
		stamp.IncrementStep = true
	} else {
		stamp.Status = state.StatusFailed
		if r.Role == workflow.RoleSupervisor {
			stamp.GalphCommit = sha
		} else {
			stamp.RalphCommit = sha
		}
	}

	st.Apply(stamp)
	msg := state.CommitMessage(r.Role, promptName, st.Iteration, st.Status)
	if err := r.Store.Save(st, msg); err != nil {
		return err
	}

	if code != 0 {
		r.Printer.Error("step %s failed (exit %d); stamped failure and pushed", promptName, code)
		return &StepFailedError{Prompt: promptName, Code: code}
	}
	r.Printer.Success("[%s] handoff complete at iteration %d", r.Role, st.Iteration)
	return nil
}

// logPath builds the per-step log file path. The uuid suffix keeps
// concurrent relaunches from appending to each other's logs.
func (r *Runner) logPath(promptName string) string {
	branch := r.Store.Branch
	if branch == "" {
		branch = "local"
	}
	branch = strings.ReplaceAll(branch, "/", "-")
	stem := strings.TrimSuffix(filepath.Base(promptName), ".md")
	name := fmt.Sprintf("iter-%s-%s_%s.log",
		r.now().Format("20060102_150405"), uuid.NewString()[:8], stem)
	return filepath.Join(r.Config.Paths.LogDir, branch, r.Role, name)
}
