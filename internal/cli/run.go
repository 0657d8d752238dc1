package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"stepsync/internal/runner"
	"stepsync/internal/workflow"
)

func newRunCommand(app *App) *cobra.Command {
	var cycles int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run both actors in one process",
		Long: `Run the supervisor and loop turns alternately inside one process.
No second machine participates, so git synchronization is optional; the
state document still advances through the same stamps a distributed run
would produce. Useful for local development and dry runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if cmd.Flags().Changed("sync-via-git") && app.flags.syncViaGit {
				return configErr(errors.New("run drives both actors in one process; git synchronization does not apply"))
			}
			// Both actors live here, so the state document never travels.
			app.Config.Sync.ViaGit = false

			supervisor, err := app.buildRunner(workflow.RoleSupervisor)
			if err != nil {
				return err
			}
			loop, err := app.buildRunner(workflow.RoleLoop)
			if err != nil {
				return err
			}
			// Both runners share one store so stamps land in one document.
			loop.Store = supervisor.Store

			app.printer().Banner("stepsync combined run (%d cycles)", cycles)
			pair := &runner.Pair{Supervisor: supervisor, Loop: loop, Cycles: cycles}
			if err := pair.Run(cmd.Context()); err != nil {
				app.printer().Error("%v", err)
				return NewExitError(ExitCodeFor(err))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&cycles, "cycles", 1, "supervisor+loop cycles to run (0 = until stopped)")
	return cmd
}
