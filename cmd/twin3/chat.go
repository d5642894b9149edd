package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/twin3/internal/cli"
	"github.com/aretw0/twin3/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	Long: `Starts an interactive conversation. Type freely, pick a suggestion by number,
or use /new, /verify <method>, /score, /help and /quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := loadApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		opts := cli.ChatOptions{Interactive: tui.IsInteractive(), Width: tui.Width(tui.DefaultWordWrap)}
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Plain, _ = cmd.Flags().GetBool("plain")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")

		return cli.RunChat(ctx, app, opts, os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("session", "s", "", "Session ID to resume (default: a new session)")
	chatCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")
	chatCmd.Flags().Bool("plain", false, "Print raw markdown instead of rendering it")
	chatCmd.Flags().Bool("fresh", false, "Discard the session before starting")

	// 'chat' is the default when no command is given.
	rootCmd.RunE = chatCmd.RunE
	rootCmd.Flags().AddFlagSet(chatCmd.Flags())
}
