// Package agent resolves and executes coding-agent CLIs.
//
// The agents are external processes (Claude CLI, Codex CLI) fed a prompt
// file on stdin. [ResolveCommand] maps a dispatched agent identifier to a
// concrete argv, and [ExecExecutor] runs it with output tee'd to both the
// console and a per-step log file. Unresolvable or missing CLIs surface as
// [ErrAgentUnavailable] so callers can fail the step without guessing.
package agent

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Agent identifiers accepted by [ResolveCommand].
const (
	AgentClaude = "claude"
	AgentCodex  = "codex"
	AgentAuto   = "auto"
)

// ErrAgentUnavailable indicates no runnable CLI could be found for the
// requested agent.
var ErrAgentUnavailable = errors.New("agent CLI not available")

var claudeArgs = []string{"-p", "--dangerously-skip-permissions", "--verbose", "--output-format", "text"}

var codexArgs = []string{
	"exec",
	"-m", "gpt-5-codex",
	"-c", "model_reasoning_effort=high",
	"--dangerously-bypass-approvals-and-sandbox",
}

// ResolveCommand maps an agent identifier to a runnable argv.
//
// For "claude" the binary is searched in order: the claudeCmd override
// (path or PATH lookup), the repo-local .claude/local/claude, the same
// under the user's home, then "claude" on PATH. For "codex" the codexCmd
// override or "codex" on PATH is used. "auto" prefers Claude and falls
// back to Codex. Returns [ErrAgentUnavailable] when nothing resolves.
func ResolveCommand(agentID, claudeCmd, codexCmd string) ([]string, error) {
	switch agentID {
	case AgentClaude:
		argv := claudeCommand(claudeCmd)
		if argv == nil {
			return nil, fmt.Errorf("%w: claude (set --claude-cmd or choose --agent=codex)", ErrAgentUnavailable)
		}
		return argv, nil
	case AgentCodex:
		argv := codexCommand(codexCmd)
		if argv == nil {
			return nil, fmt.Errorf("%w: codex (set --codex-cmd or choose --agent=claude)", ErrAgentUnavailable)
		}
		return argv, nil
	case AgentAuto, "":
		if argv := claudeCommand(claudeCmd); argv != nil {
			return argv, nil
		}
		if argv := codexCommand(codexCmd); argv != nil {
			return argv, nil
		}
		return nil, fmt.Errorf("%w: neither claude nor codex resolved (configure --claude-cmd/--codex-cmd)", ErrAgentUnavailable)
	default:
		return nil, fmt.Errorf("%w: unknown agent %q", ErrAgentUnavailable, agentID)
	}
}

func claudeCommand(override string) []string {
	if bin := findBinary(override); bin != "" {
		return append([]string{bin}, claudeArgs...)
	}
	if bin := claudeDefault(); bin != "" {
		return append([]string{bin}, claudeArgs...)
	}
	return nil
}

func codexCommand(override string) []string {
	name := override
	if name == "" {
		name = "codex"
	}
	bin := findBinary(name)
	if bin == "" {
		return nil
	}
	return append([]string{bin}, codexArgs...)
}

// claudeDefault searches the conventional Claude CLI locations: the
// repo-local install, the home-directory install, then PATH.
func claudeDefault() string {
	local := filepath.Join(".claude", "local", "claude")
	if isExecutable(local) {
		return local
	}
	if home, err := os.UserHomeDir(); err == nil {
		homeLocal := filepath.Join(home, ".claude", "local", "claude")
		if isExecutable(homeLocal) {
			return homeLocal
		}
	}
	if path, err := exec.LookPath("claude"); err == nil {
		return path
	}
	return ""
}

// findBinary resolves name as an executable path or a PATH entry.
func findBinary(name string) string {
	if name == "" {
		return ""
	}
	if isExecutable(name) {
		return name
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
