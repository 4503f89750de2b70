package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored sessions",
	Long:  `List, inspect, abandon and remove the sessions of the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildForSession(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		sessions, err := app.Bot.Sessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		fmt.Println("Sessions:")
		for _, s := range sessions {
			fmt.Println("- " + s)
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-key>",
	Short: "Print a session and its archived conversations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildForSession(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		s, err := app.Bot.Session(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", args[0], err)
		}
		history, err := app.Bot.History(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading history of '%s': %w", args[0], err)
		}

		data, err := json.MarshalIndent(map[string]any{"session": s, "history": history}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var sessionAbandonCmd = &cobra.Command{
	Use:   "abandon <session-key>...",
	Short: "Archive the current conversation of one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildForSession(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		reason, _ := cmd.Flags().GetString("reason")
		var errs []error
		for _, key := range args {
			rec, err := app.Bot.Abandon(cmd.Context(), key, reason)
			if err != nil {
				errs = append(errs, fmt.Errorf("error abandoning '%s': %w", key, err))
				continue
			}
			fmt.Printf("Archived session '%s' at state '%s' (%s)\n", key, rec.State, rec.ID)
		}
		return errors.Join(errs...)
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-key>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildForSession(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		var errs []error
		for _, key := range args {
			if err := app.Store.Delete(cmd.Context(), key); err != nil {
				errs = append(errs, fmt.Errorf("error removing '%s': %w", key, err))
				continue
			}
			fmt.Printf("Removed session '%s'\n", key)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionAbandonCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	sessionAbandonCmd.Flags().String("reason", "", "Archive reason (default abandoned)")
}

func buildForSession(cmd *cobra.Command) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, _ := newLogger(cmd, cfg)
	return cli.Build(cmd.Context(), cfg, cli.BuildOptions{Logger: logger})
}
