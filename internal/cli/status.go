package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"stepsync/internal/state"
	"stepsync/internal/workflow"
)

// statusView is the YAML shape printed by the status command. It adds the
// derived turn owner and lease freshness to the raw document fields.
type statusView struct {
	Workflow     string `yaml:"workflow"`
	StepIndex    int    `yaml:"step_index"`
	Iteration    int    `yaml:"iteration"`
	Status       string `yaml:"status"`
	ExpectedStep string `yaml:"expected_step,omitempty"`
	Turn         string `yaml:"turn"`
	LastPrompt   string `yaml:"last_prompt,omitempty"`
	LastUpdate   string `yaml:"last_update,omitempty"`
	LeaseFresh   bool   `yaml:"lease_fresh"`
	GalphCommit  string `yaml:"galph_commit,omitempty"`
	RalphCommit  string `yaml:"ralph_commit,omitempty"`
	Exit         bool   `yaml:"exit,omitempty"`
	ExitReason   string `yaml:"exit_reason,omitempty"`
}

func newStatusCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the state document",
		Long: `Read the state document from disk (without pulling) and print it as
YAML, including the derived turn owner and whether the lease stamp is
still fresh.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			st := state.Read(app.Config.Paths.StateFile)

			view := statusView{
				Workflow:     st.WorkflowName,
				StepIndex:    st.StepIndex,
				Iteration:    st.Iteration,
				Status:       string(st.Status),
				ExpectedStep: st.ExpectedStep,
				Turn:         workflow.RoleFor(st.StepIndex),
				LastPrompt:   st.LastPrompt,
				LastUpdate:   st.LastUpdate,
				LeaseFresh:   st.LeaseFresh(time.Now()),
				GalphCommit:  st.GalphCommit,
				RalphCommit:  st.RalphCommit,
				Exit:         st.Exit,
				ExitReason:   st.ExitReason,
			}

			rendered, err := yaml.Marshal(view)
			if err != nil {
				return fmt.Errorf("render status: %w", err)
			}
			cmd.Print(string(rendered))
			return nil
		},
	}
}
