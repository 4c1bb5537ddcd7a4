package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "unitscout",
		Short: "UnitScout: unit-price catalog builder for daily necessities",
		Long: `UnitScout scrapes marketplace search results for everyday products,
extracts pack quantities with a language model, and keeps a per-category
catalog ranked by unit price.

Categories:
  toilet_paper, rice, mask, dishwashing_liquid, mineral_water`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(categoriesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("UnitScout %s\n", config.Version)
		},
	}
}

// categoriesCmd lists the registered categories and their filters.
func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories and their filters",
		Run: func(cmd *cobra.Command, args []string) {
			for _, d := range category.Default().All() {
				filters := make([]string, 0, len(d.Filters)+1)
				for _, f := range d.FilterNames() {
					filters = append(filters, string(f))
				}
				fmt.Printf("%-20s %s\n", d.Name, d.Label)
				fmt.Printf("  Sorted by:  %s\n", d.ScoreField)
				fmt.Printf("  Filters:    %s\n", strings.Join(filters, ", "))
			}
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Fetcher:\n")
			fmt.Printf("  Type:              %s\n", cfg.Fetcher.Type)
			fmt.Printf("  Base URL:          %s\n", cfg.Fetcher.BaseURL)
			fmt.Printf("  Min Interval:      %s\n", cfg.Fetcher.MinInterval)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Max Pages:         %d\n", cfg.Fetcher.MaxPages)
			fmt.Printf("  Headless:          %v\n", cfg.Fetcher.Headless)
			fmt.Printf("\nLLM:\n")
			fmt.Printf("  Provider:          %s\n", cfg.LLM.Provider)
			fmt.Printf("  Model:             %s\n", cfg.LLM.Model)
			fmt.Printf("  API Key:           %s\n", mask(cfg.LLM.APIKey))
			fmt.Printf("\nReconcile:\n")
			fmt.Printf("  Reverify Threshold: %.2f\n", cfg.Reconcile.ReverifyThreshold)
			fmt.Printf("  Reverify On Sale:   %v\n", cfg.Reconcile.ReverifyOnSale)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("  DSN:               %s\n", cfg.Storage.DSN)
			fmt.Printf("  Export Path:       %s\n", cfg.Storage.ExportPath)
			fmt.Printf("\nCache:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Cache.Enabled)
			fmt.Printf("  Addr:              %s\n", cfg.Cache.Addr)
			fmt.Printf("  TTL:               %s\n", cfg.Cache.TTL)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// setupLogger creates a structured logger on stderr.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}
