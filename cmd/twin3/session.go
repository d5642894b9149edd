package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/twin3/pkg/runner"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sessions"},
	Short:   "Manage stored conversations",
	Long:    `Lists, inspects and removes conversations kept by the file or redis store.`,
}

var sessionListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ids, err := app.Sessions.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print a conversation as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		conv, err := app.Sessions.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(conv)
	},
}

var sessionRemoveCmd = &cobra.Command{
	Use:     "rm <session-id>...",
	Aliases: []string{"delete"},
	Short:   "Delete sessions and their verification flags",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		for _, id := range args {
			if err := app.Sessions.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to delete %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
		}
		return nil
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score <session-id> [method]...",
	Short: "Show the Humanity Index of a session, recording any methods given",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		sessionID := args[0]
		if _, err := app.Sessions.Start(ctx, sessionID); err != nil {
			return err
		}
		for _, method := range args[1:] {
			if _, err := app.Sessions.CompleteMethod(ctx, sessionID, method); err != nil {
				return err
			}
		}
		report, err := app.Sessions.Score(ctx, sessionID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), runner.FormatReport(report))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd, scoreCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionInspectCmd, sessionRemoveCmd)
}
