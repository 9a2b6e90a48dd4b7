package deploycmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/erdbridge/erdbridge/apps/cli/engine"
	"github.com/erdbridge/erdbridge/domains/deployments/be/service"
	"github.com/erdbridge/erdbridge/platform/go/progress"
)

// Command deploys a schema descriptor file to the platform.
func Command() *cobra.Command {
	var (
		file  string
		quiet bool
	)

	c := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a schema descriptor (publisher, solution, tables, relationships, choices)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read descriptor: %w", err)
			}
			var spec service.DeploymentSpec
			if err := json.Unmarshal(raw, &spec); err != nil {
				return fmt.Errorf("parse descriptor: %w", err)
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

			result, err := eng.Service.Deploy(ctx, spec)
			if err != nil {
				return fmt.Errorf("deploy: %w", err)
			}

			encoded, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

			if !result.Success {
				return fmt.Errorf("deployment %s completed with %d error(s)", result.DeploymentID, len(result.Errors))
			}
			return nil
		},
	}

	c.Flags().StringVar(&file, "file", "", "Path to the deployment descriptor JSON")
	c.Flags().BoolVar(&quiet, "quiet", false, "Suppress stage progress output")

	_ = c.MarkFlagRequired("file")

	return c
}
