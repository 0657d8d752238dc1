// Package workflow provides the deterministic step sequencer.
//
// The sequencer is a pure function from (workflow name, step index) to the
// prompt that would run absent any router override. Step-index parity
// assigns the actor: even steps belong to the supervisor (galph), odd steps
// to the engineer loop (ralph). The review_cadence workflow periodically
// substitutes the reviewer prompt for both steps of a cycle.
//
// Key types:
//   - [Workflow] - an immutable step plan created by [Get]
//   - [Step] - the selected step name and prompt file
//
// The sequencer performs no I/O; prompt-file existence is checked later by
// the router stage.
package workflow

import (
	"errors"
	"fmt"
)

// Actor role names. These match the commit fields in the shared state
// document (galph_commit / ralph_commit).
const (
	RoleSupervisor = "galph"
	RoleLoop       = "ralph"
)

// Step names as recorded in expected_step.
const (
	StepSupervisor = "supervisor"
	StepMain       = "main"
	StepReviewer   = "reviewer"
)

// ErrUnknownWorkflow is returned by [Get] for workflow names outside the
// supported set. Unknown names never fall back to a default.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// Prompts holds the prompt file names the sequencer selects between.
type Prompts struct {
	Supervisor string
	Main       string
	Reviewer   string
}

// DefaultPrompts returns the conventional prompt file names.
func DefaultPrompts() Prompts {
	return Prompts{
		Supervisor: "supervisor.md",
		Main:       "main.md",
		Reviewer:   "reviewer.md",
	}
}

// Step is one selected step: the step name (supervisor, main, or reviewer)
// and the prompt file it runs.
type Step struct {
	Name   string
	Prompt string
}

// Workflow is an immutable step plan. Create with [Get].
type Workflow struct {
	// Name is the workflow identifier ("standard" or "review_cadence").
	Name string

	// steps holds the per-parity base steps: index 0 supervisor, 1 loop.
	steps [2]Step

	// reviewEveryN substitutes the reviewer prompt every N cycles.
	// Zero disables cadence.
	reviewEveryN int

	reviewer Step
}

// Get returns the [Workflow] for the given name.
//
// Supported names:
//   - "standard": supervisor and main prompts alternate by parity
//   - "review_cadence": as standard, but every reviewEveryN-th cycle both
//     steps run the reviewer prompt; reviewEveryN = 0 disables cadence
//
// Unknown names return [ErrUnknownWorkflow]; there is no silent default.
func Get(name string, prompts Prompts, reviewEveryN int) (*Workflow, error) {
	base := [2]Step{
		{Name: StepSupervisor, Prompt: prompts.Supervisor},
		{Name: StepMain, Prompt: prompts.Main},
	}
	switch name {
	case "standard":
		return &Workflow{Name: name, steps: base}, nil
	case "review_cadence":
		if reviewEveryN < 0 {
			return nil, fmt.Errorf("review_every_n must be >= 0, got %d", reviewEveryN)
		}
		return &Workflow{
			Name:         name,
			steps:        base,
			reviewEveryN: reviewEveryN,
			reviewer:     Step{Name: StepReviewer, Prompt: prompts.Reviewer},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q (use standard or review_cadence)", ErrUnknownWorkflow, name)
	}
}

// Select returns the step for stepIndex. It is pure and deterministic:
// standard workflows depend only on stepIndex mod 2, and cadence cycles are
// 0-based step pairs where cycle c is a review cycle iff
// (c+1) mod reviewEveryN == 0.
func (w *Workflow) Select(stepIndex int) (Step, error) {
	if stepIndex < 0 {
		return Step{}, fmt.Errorf("step index must be non-negative, got %d", stepIndex)
	}
	if w.reviewEveryN > 0 {
		cycle := stepIndex / 2
		if (cycle+1)%w.reviewEveryN == 0 {
			return w.reviewer, nil
		}
	}
	return w.steps[stepIndex%2], nil
}

// RoleFor returns the actor role that owns stepIndex: even parity belongs
// to the supervisor, odd parity to the loop.
func RoleFor(stepIndex int) string {
	if stepIndex%2 == 0 {
		return RoleSupervisor
	}
	return RoleLoop
}
