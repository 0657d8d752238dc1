package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecExecutor runs agent CLIs as subprocesses with the prompt file on
// stdin and output streamed to both the console and a per-step log.
type ExecExecutor struct {
	// ClaudeCmd and CodexCmd override binary resolution.
	ClaudeCmd string
	CodexCmd  string

	// Stdout and Stderr receive the live stream; nil uses the process
	// defaults.
	Stdout io.Writer
	Stderr io.Writer

	// StreamJSON switches Claude to stream-json output and renders it
	// back to plain text on the way through. Codex is unaffected.
	StreamJSON bool
}

func (e *ExecExecutor) stdout() io.Writer {
	if e.Stdout != nil {
		return e.Stdout
	}
	return os.Stdout
}

func (e *ExecExecutor) stderr() io.Writer {
	if e.Stderr != nil {
		return e.Stderr
	}
	return os.Stderr
}

// Run executes the agent with promptPath on stdin, appending everything
// the process writes to logPath while mirroring it to the console. It
// returns the process exit code; a negative code with a non-nil error
// means the process could not be started at all.
func (e *ExecExecutor) Run(ctx context.Context, agentID, promptPath, logPath string) (int, error) {
	argv, err := ResolveCommand(agentID, e.ClaudeCmd, e.CodexCmd)
	if err != nil {
		return -1, err
	}

	prompt, err := os.Open(promptPath)
	if err != nil {
		return -1, fmt.Errorf("open prompt: %w", err)
	}
	defer prompt.Close()

	logFile, err := openLog(logPath)
	if err != nil {
		return -1, err
	}
	defer logFile.Close()

	var stream bool
	if e.StreamJSON {
		argv, stream = streamJSONArgs(argv)
	}

	fmt.Fprintf(logFile, "$ %s\n", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = prompt
	out := io.MultiWriter(e.stdout(), logFile)
	cmd.Stderr = io.MultiWriter(e.stderr(), logFile)

	if stream {
		pr, pw := io.Pipe()
		cmd.Stdout = pw
		renderDone := make(chan error, 1)
		go func() {
			err := RenderStream(pr, out)
			pr.CloseWithError(err)
			renderDone <- err
		}()

		if err := cmd.Start(); err != nil {
			pw.Close()
			return -1, fmt.Errorf("run agent %s: %w", agentID, err)
		}
		waitErr := cmd.Wait()
		pw.Close()
		if err := <-renderDone; err != nil {
			return -1, fmt.Errorf("render agent output: %w", err)
		}
		if waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				return exitErr.ExitCode(), nil
			}
			return -1, fmt.Errorf("run agent %s: %w", agentID, waitErr)
		}
		return 0, nil
	}

	cmd.Stdout = out
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("run agent %s: %w", agentID, err)
	}
	return 0, nil
}

// streamJSONArgs swaps the text output format for stream-json. Only
// Claude argvs carry --output-format, so codex passes through unchanged
// and the second return reports whether rendering is needed.
func streamJSONArgs(argv []string) ([]string, bool) {
	out := make([]string, len(argv))
	copy(out, argv)
	swapped := false
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "--output-format" && out[i+1] == "text" {
			out[i+1] = "stream-json"
			swapped = true
		}
	}
	return out, swapped
}

// Query runs the agent with promptPath on stdin and captures stdout for
// parsing, still appending the exchange to logPath. Used for router
// prompts, whose reply must be a single line.
func (e *ExecExecutor) Query(ctx context.Context, agentID, promptPath, logPath string) (string, error) {
	argv, err := ResolveCommand(agentID, e.ClaudeCmd, e.CodexCmd)
	if err != nil {
		return "", err
	}

	prompt, err := os.Open(promptPath)
	if err != nil {
		return "", fmt.Errorf("open prompt: %w", err)
	}
	defer prompt.Close()

	logFile, err := openLog(logPath)
	if err != nil {
		return "", err
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "$ %s\n", strings.Join(argv, " "))

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = prompt
	cmd.Stdout = io.MultiWriter(&out, logFile)
	cmd.Stderr = logFile

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run router agent %s: %w", agentID, err)
	}
	return out.String(), nil
}

func openLog(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return f, nil
}
