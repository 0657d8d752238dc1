package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"stepsync/internal/output"
)

// ExecuteResult carries the outcome of a CLI run for callers that do not
// want the process terminated.
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// Execute runs the CLI and terminates the process with the mapped exit
// code. SIGINT and SIGTERM cancel the command context so an in-flight
// turn stops between steps instead of mid-push.
func Execute() {
	result := Run(os.Args[1:])
	os.Exit(result.ExitCode)
}

// Run executes the CLI against args and returns the result instead of
// exiting. Environment overrides from a .env file load first, matching
// how operators configure per-machine agent paths.
func Run(args []string) ExecuteResult {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{Printer: output.NewPrinter()}
	root := NewRootCommand(app)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		app.printer().Error("%v", err)
		return ExecuteResult{ExitCode: ExitCodeFor(err), Err: err}
	}
	return ExecuteResult{ExitCode: ExitOK}
}
