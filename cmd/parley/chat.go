package main

import (
	"os"
	"strings"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat [flow]",
	Short: "Talk to a flow in the terminal",
	Long: `Runs a conversation in the terminal. Menus are numbered; reply with the number
or the label. Without a flow argument the configured entry flow is started.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, debug := newLogger(cmd, cfg)

		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		render := tui.PlainRenderer
		if term.IsTerminal(int(os.Stdout.Fd())) {
			width, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err != nil {
				width = 80
			}
			render = tui.NewRenderer(width)
		}
		sender := cli.NewTerminalSender(os.Stdout, render)

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		app, err := cli.Build(ctx, cfg, cli.BuildOptions{Logger: logger, Sender: sender, Debug: debug})
		if err != nil {
			return err
		}
		defer app.Close()

		opts := cli.ChatOptions{In: os.Stdin, Out: os.Stdout}
		opts.SessionKey, _ = cmd.Flags().GetString("session")
		if len(args) > 0 {
			opts.Flow = args[0]
		}
		if interactive {
			tui.PrintBanner(os.Stdout, strings.TrimSpace(parley.Version))
			opts.Prompt = "> "
		}
		return cli.RunChat(ctx, app.Bot, sender, opts)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("session", "cli", "Session key of the conversation")
	chatCmd.Flags().String("entry-flow", "", "Flow started when none is given")
}
