package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley is a state machine engine for messaging chatbots",
	Long: `Parley runs declarative conversation flows (JSON or YAML) against inbound
WhatsApp messages, keeping one durable session per user.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// flagBindings maps config keys to the flags that override them.
var flagBindings = map[string]string{
	"flows.dir":      "flows",
	"flows.watch":    "watch",
	"store.driver":   "store",
	"store.dsn":      "dsn",
	"log.level":      "log-level",
	"http.addr":      "addr",
	"bot.entry_flow": "entry-flow",
}

func init() {
	// Persistent flags (available to all commands)
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file (default ./parley.yaml when present)")
	pf.String("env-file", ".env", "Path to a .env file loaded before reading PARLEY_* variables")
	pf.String("flows", "flows", "Directory containing the flow documents")
	pf.String("store", config.DriverMemory, "Session store driver (memory|file|redis|sqlite|postgres)")
	pf.String("dsn", "", "Store location: directory (file), path (sqlite) or URL (postgres)")
	pf.String("log-level", "info", "Log level (debug|info|warn|error)")
	pf.Bool("debug", false, "Log every engine lifecycle event")
}

// loadConfig resolves flags, environment, .env and config file into a Config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	v := config.New()
	if err := config.BindFlags(v, cmd.Flags(), flagBindings); err != nil {
		return nil, err
	}
	file, _ := cmd.Flags().GetString("config")
	return config.Load(v, file)
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, bool) {
	debug, _ := cmd.Flags().GetBool("debug")
	return cli.NewLogger(cfg.Log.Level, debug), debug
}
