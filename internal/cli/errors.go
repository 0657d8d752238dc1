package cli

import (
	"errors"
	"fmt"

	"stepsync/internal/agent"
	"stepsync/internal/dispatch"
	"stepsync/internal/gitport"
	"stepsync/internal/guard"
	"stepsync/internal/router"
	"stepsync/internal/runner"
	"stepsync/internal/workflow"
)

// Exit codes returned to the shell. Scripts driving the two actors key
// off these to decide whether to relaunch, repair the worktree, or page
// someone.
const (
	ExitOK          = 0
	ExitStepFailed  = 1
	ExitConfig      = 2
	ExitVCS         = 3
	ExitDirtyTree   = 4
	ExitPollTimeout = 5
)

// ExitError represents a command failure with a specific exit code.
//
// Cobra RunE functions return this instead of calling os.Exit directly,
// so tests can assert on exit codes without process termination. The
// [Execute] function performs the actual os.Exit based on the code.
type ExitError struct {
	// Code is the exit code to return to the shell.
	Code int
}

// Error returns "exit status N", matching the os/exec convention.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an [ExitError] with the given exit code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError checks if an error is an [ExitError] and extracts its code.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// ExitCodeFor maps a runner error to its shell exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	if code, ok := IsExitError(err); ok {
		return code
	}

	var stepErr *runner.StepFailedError
	if errors.As(err, &stepErr) {
		return ExitStepFailed
	}
	if errors.Is(err, runner.ErrPollTimeout) {
		return ExitPollTimeout
	}

	var dirtyErr *guard.DirtyTreeError
	if errors.As(err, &dirtyErr) {
		return ExitDirtyTree
	}

	var branchErr *gitport.BranchMismatchError
	var pullErr *gitport.PullConflictError
	var pushErr *gitport.PushRejectedError
	if errors.As(err, &branchErr) || errors.As(err, &pullErr) || errors.As(err, &pushErr) {
		return ExitVCS
	}

	var routerErr *router.OutputError
	if errors.As(err, &routerErr) ||
		errors.Is(err, dispatch.ErrNoAgent) ||
		errors.Is(err, workflow.ErrUnknownWorkflow) ||
		errors.Is(err, agent.ErrAgentUnavailable) {
		return ExitConfig
	}

	return ExitStepFailed
}
