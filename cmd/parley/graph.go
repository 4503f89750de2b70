package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <flow>",
	Short: "Export a flow as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart (graph TD) of the flow's states and transitions.
With --session the states that session visited are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, _ := newLogger(cmd, cfg)

		app, err := cli.Build(cmd.Context(), cfg, cli.BuildOptions{Logger: logger})
		if err != nil {
			return err
		}
		defer app.Close()

		flow, err := app.Flows.Get(args[0])
		if errors.Is(err, domain.ErrFlowNotFound) {
			flow, err = app.Flows.GetByName(args[0])
		}
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if key, _ := cmd.Flags().GetString("session"); key != "" {
			s, err := app.Bot.Session(cmd.Context(), key)
			if err != nil {
				return fmt.Errorf("failed to load session %q: %w", key, err)
			}
			overlay = graph.OverlayFor(flow, s)
		}

		fmt.Print(graph.GenerateMermaid(flow, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("session", "", "Highlight the path of this session")
}
