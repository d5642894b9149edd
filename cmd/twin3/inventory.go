package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/twin3"
	"github.com/aretw0/twin3/internal/presentation/graph"
	"github.com/spf13/cobra"
)

const welcomeNode = "welcome"

var inventoryCmd = &cobra.Command{
	Use:     "inventory",
	Aliases: []string{"inv"},
	Short:   "Inspect the Interaction Inventory",
}

var inventoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scripted nodes with their triggers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		inv, err := twin3.LoadInventory(cfg.Inventory)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTRIGGERS\tWIDGET\tDELAY")
		for _, n := range inv.Nodes() {
			widget := "-"
			if n.Response.Widget != "" {
				widget = string(n.Response.Widget)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%dms\n", n.ID, strings.Join(n.Triggers, ","), widget, n.Response.DelayMs)
		}
		return w.Flush()
	},
}

var inventoryValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate an inventory file against the configured routes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path := cfg.Inventory
		if len(args) > 0 {
			path = args[0]
		}
		inv, err := twin3.LoadInventory(path)
		if err != nil {
			return fmt.Errorf("invalid inventory: %w", err)
		}

		required := append([]string{welcomeNode, cfg.Dispatch.VerificationNode}, cfg.Dispatch.GatedActions...)
		if cfg.Verification.CompletionNode != "" {
			required = append(required, cfg.Verification.CompletionNode)
		}
		var missing []string
		for _, id := range required {
			if id != "" && !inv.Has(id) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("inventory is missing nodes referenced by config: %s", strings.Join(missing, ", "))
		}

		out := cmd.OutOrStdout()
		for _, p := range inv.DanglingPayloads() {
			fmt.Fprintf(out, "warning: suggestion payload %q matches no node and will fall through\n", p)
		}
		fmt.Fprintf(out, "OK: %d nodes\n", inv.Len())
		return nil
	},
}

var inventoryGraphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the conversation graph as a Mermaid flowchart",
	Long: `Renders nodes and suggestion edges as Mermaid. With --session, the nodes
that conversation already visited are highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			inv, err := twin3.LoadInventory(cfg.Inventory)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), graph.GenerateMermaid(inv, welcomeNode, nil))
			return nil
		}

		app, err := loadApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		conv, err := app.Sessions.Get(cmd.Context(), sessionID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), graph.GenerateMermaid(app.Inventory, welcomeNode, graph.OverlayFor(conv)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inventoryCmd)
	inventoryCmd.AddCommand(inventoryListCmd, inventoryValidateCmd, inventoryGraphCmd)

	inventoryGraphCmd.Flags().StringP("session", "s", "", "Highlight the path taken by a stored session")
}
