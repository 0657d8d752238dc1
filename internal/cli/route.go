package cli

import (
	"os"

	"github.com/spf13/cobra"

	"stepsync/internal/router"
	"stepsync/internal/state"
	"stepsync/internal/workflow"
)

func newRouteCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "route",
		Short: "Preview the routing decision for the current step",
		Long: `Show which prompt would run next without executing anything: read
the state document, apply the workflow cadence, then apply the router
stage using --router-output as the router's reply.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg := app.Config

			wf, err := workflow.Get(cfg.Workflow.Name, workflow.Prompts{
				Supervisor: cfg.Workflow.Prompts.Supervisor,
				Main:       cfg.Workflow.Prompts.Main,
				Reviewer:   cfg.Workflow.Prompts.Reviewer,
			}, cfg.Workflow.ReviewEveryN)
			if err != nil {
				return configErr(err)
			}

			st := state.Read(cfg.Paths.StateFile)
			step, err := wf.Select(st.StepIndex)
			if err != nil {
				return configErr(err)
			}

			rt, err := app.buildRouter()
			if err != nil {
				return err
			}

			printer := app.printer()
			printer.Info("step %d (%s), turn: %s", st.StepIndex, step.Name, workflow.RoleFor(st.StepIndex))

			if rt == nil {
				printer.Info("deterministic: %s (router disabled)", router.NormalizePrompt(step.Prompt))
				return nil
			}

			decision, err := rt.Apply(step.Prompt, app.flags.routerOutput, func(path string) bool {
				_, statErr := os.Stat(path)
				return statErr == nil
			})
			if err != nil {
				printer.Error("%v", err)
				return NewExitError(ExitCodeFor(err))
			}
			printer.Info("%s: %s (%s)", decision.Source, decision.Prompt, decision.Reason)
			return nil
		},
	}
}
