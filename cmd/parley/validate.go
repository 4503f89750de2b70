package main

import (
	"context"
	"fmt"

	"github.com/aretw0/parley/internal/compiler"
	"github.com/aretw0/parley/internal/validator"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/dispatch"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check the flows for consistency",
	Long: `Parses every flow document in the directory and reports unknown actions, dead
transitions, bad jumps, silent cycles and unreachable states.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("flows")
		if len(args) > 0 {
			dir = args[0]
		}
		extra, _ := cmd.Flags().GetStringSlice("action")

		report, n, err := runValidate(dir, extra)
		if err != nil {
			return err
		}
		for _, w := range report.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		for _, e := range report.Errors {
			fmt.Printf("error: %s\n", e)
		}
		if !report.OK() {
			return fmt.Errorf("validation failed with %d error(s)", len(report.Errors))
		}
		fmt.Printf("%d flow(s) are valid! ✅\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringSlice("action", nil, "Name of an application action to accept besides the built-ins (repeatable)")
}

func runValidate(dir string, extra []string) (*validator.Report, int, error) {
	flows, err := file.LoadDir(compiler.NewParser(), dir)
	if err != nil {
		return nil, 0, err
	}

	reg := dispatch.NewRegistry()
	if err := dispatch.RegisterBuiltins(reg, dispatch.New(reg, memory.NewSender())); err != nil {
		return nil, 0, err
	}
	for _, name := range extra {
		if err := reg.RegisterFunc(name, placeholder); err != nil {
			return nil, 0, err
		}
	}

	return validator.ValidateFlows(flows, reg), len(flows), nil
}

// placeholder stands in for actions that only exist in the embedding program.
func placeholder(context.Context, *domain.Invocation) domain.ActionResult {
	return domain.Plain("")
}
