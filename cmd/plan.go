package cmd

import (
	"fmt"

	"elisedb/provision"
	"elisedb/schema"

	"github.com/spf13/cobra"
)

// planOutput is the --json rendering of the resolved plan
type planOutput struct {
	Plan  schema.Plan             `json:"plan"`
	Steps []provision.PlannedStep `json:"steps"`
}

// newPlanCmd creates the 'plan' subcommand
func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the resolved plan",
		Long: `Print the plan a run would apply, after configuration and --plan are
resolved, followed by the ordered steps. Nothing is sent to the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession()
			if err != nil {
				return err
			}
			defer sess.close()

			steps := provision.Steps(sess.plan)

			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), planOutput{Plan: sess.plan, Steps: steps})
			}

			data, err := sess.plan.YAML()
			if err != nil {
				return fmt.Errorf("failed to render plan: %w", err)
			}

			w := cmd.OutOrStdout()
			if _, err := w.Write(data); err != nil {
				return err
			}
			renderSteps(w, steps)
			return nil
		},
	}
}
