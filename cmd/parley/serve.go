package main

import (
	"github.com/aretw0/parley/internal/cli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook and API server",
	Long: `Starts the bot behind an HTTP server: the Twilio WhatsApp webhook, a JSON event
endpoint, session inspection and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, debug := newLogger(cmd, cfg)

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		app, err := cli.Build(ctx, cfg, cli.BuildOptions{Logger: logger, Registerer: reg, Debug: debug})
		if err != nil {
			return err
		}
		defer app.Close()

		if err := cli.Serve(ctx, app, cfg, cli.NewHandler(app, cfg, logger, reg), logger); err != nil {
			return err
		}
		if sig := ctx.Signal(); sig != nil {
			logger.Info("Stopped", "signal", sig.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().Bool("watch", false, "Reload flows when files in the flows directory change")
	serveCmd.Flags().String("entry-flow", "", "Flow started for users without an active conversation")
}
