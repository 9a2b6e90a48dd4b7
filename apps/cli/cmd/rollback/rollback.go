package rollbackcmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/erdbridge/erdbridge/apps/cli/engine"
	"github.com/erdbridge/erdbridge/domains/deployments/be/service"
	"github.com/erdbridge/erdbridge/platform/go/progress"
)

// Command rolls back components of a recorded deployment.
func Command() *cobra.Command {
	var (
		all           bool
		relationships bool
		entities      bool
		cdmEntities   bool
		choices       bool
		solution      bool
		publisher     bool
		quiet         bool
	)

	c := &cobra.Command{
		Use:   "rollback <deployment-id>",
		Short: "Remove deployed components in reverse dependency order",
		Long: "Removes the selected component categories of a recorded deployment. " +
			"Passes are incremental: components removed by earlier passes are skipped, " +
			"and dependent categories are pulled in automatically (removing the publisher " +
			"implies the solution and everything inside it).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			options := service.RollbackOptions{
				Relationships:       relationships,
				CustomEntities:      entities,
				CDMEntities:         cdmEntities,
				CustomGlobalChoices: choices,
				Solution:            solution,
				Publisher:           publisher,
			}
			if all {
				options = service.AllRollbackOptions()
			}

			var sink progress.Sink = progress.NopSink{}
			if !quiet {
				out := cmd.OutOrStdout()
				sink = progress.FuncSink(func(event progress.Event) {
					fmt.Fprintf(out, "[%s] %s\n", event.Stage, event.Message)
				})
			}

			eng, err := engine.New(ctx, sink)
			if err != nil {
				return err
			}
			defer eng.Close()

			response, err := eng.Service.Rollback(ctx, service.RollbackRequest{
				DeploymentID: args[0],
				Options:      options,
			})
			if err != nil {
				return fmt.Errorf("rollback: %w", err)
			}

			encoded, err := json.MarshalIndent(response, "", "  ")
			if err != nil {
				return fmt.Errorf("encode response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

			if len(response.Results.Errors) > 0 {
				return fmt.Errorf("rollback %s halted with %d error(s)", response.RollbackID, len(response.Results.Errors))
			}
			return nil
		},
	}

	c.Flags().BoolVar(&all, "all", false, "Roll back every category")
	c.Flags().BoolVar(&relationships, "relationships", false, "Roll back one-to-many relationships")
	c.Flags().BoolVar(&entities, "custom-entities", false, "Roll back created tables")
	c.Flags().BoolVar(&cdmEntities, "cdm-entities", false, "Report referenced standard tables (never deleted)")
	c.Flags().BoolVar(&choices, "global-choices", false, "Roll back created global choices")
	c.Flags().BoolVar(&solution, "solution", false, "Remove the solution container")
	c.Flags().BoolVar(&publisher, "publisher", false, "Remove the publisher (implies everything else)")
	c.Flags().BoolVar(&quiet, "quiet", false, "Suppress stage progress output")

	return c
}
