package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/twin3"
	"github.com/aretw0/twin3/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "twin3",
	Short: "twin3 is a scripted onboarding assistant",
	Long: `twin3 guides users through proving they are human, revealing their Twin Matrix
and earning rewards. Conversations follow an Interaction Inventory and fall back to
a generative model (when configured) for anything the script does not cover.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("inventory", "", "Path to an inventory YAML (default: built-in script)")
	rootCmd.PersistentFlags().String("store", "", "Conversation store: memory, file or redis")
}

// loadConfig reads --config and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("inventory"); v != "" {
		cfg.Inventory = v
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store.Driver = v
	}
	return cfg, cfg.Validate()
}

// loadApp wires the application from the command flags.
func loadApp(ctx context.Context, cmd *cobra.Command, opts ...twin3.Option) (*twin3.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return twin3.New(ctx, cfg, opts...)
}
