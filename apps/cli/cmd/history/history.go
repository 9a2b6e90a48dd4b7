package historycmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/erdbridge/erdbridge/apps/cli/engine"
)

// Command groups deployment history helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded deployments",
	}

	cmd.AddCommand(listCommand())
	cmd.AddCommand(getCommand())
	return cmd
}

func listCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			history, err := engine.NewHistory(ctx)
			if err != nil {
				return err
			}
			defer history.Close()

			records, total, err := history.Repo.List(ctx, limit, offset)
			if err != nil {
				return fmt.Errorf("list deployments: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DEPLOYMENT\tTIMESTAMP\tSTATUS\tSOLUTION\tTABLES\tROLLBACKS")
			for _, record := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					record.DeploymentID,
					record.Timestamp.Format("2006-01-02 15:04:05"),
					record.Status,
					record.SolutionInfo.SolutionUniqueName,
					len(record.RollbackData.CustomEntities),
					len(record.Rollbacks),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d record(s)\n", len(records), total)
			return nil
		},
	}

	c.Flags().IntVar(&limit, "limit", 20, "Maximum records to return")
	c.Flags().IntVar(&offset, "offset", 0, "Records to skip")

	return c
}

func getCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "get <deployment-id>",
		Short: "Show one deployment record, rollback history included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			history, err := engine.NewHistory(ctx)
			if err != nil {
				return err
			}
			defer history.Close()

			record, err := history.Repo.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get deployment: %w", err)
			}

			encoded, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}

	return c
}
