package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pbaille/nutrilog/internal/config"
	"github.com/pbaille/nutrilog/internal/logger"
	"github.com/pbaille/nutrilog/internal/sources"
	"github.com/pbaille/nutrilog/internal/store"
)

var (
	dbPath     string
	configPath string

	cfg config.Config
	log *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "nutrilog",
		Short:         "Local nutrition diary",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			log, err = logger.New(cfg.LogMode)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				log.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "YAML config file")

	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(customCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(rmCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(favCmd())
	rootCmd.AddCommand(frequentCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(barcodeCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func getStore(ctx context.Context) (*store.Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.Open(ctx, cfg.DBPath, log)
}

// getSources builds the remote food sources, fronted by redis when REDIS_ADDR is set
func getSources(ctx context.Context) *sources.Registry {
	reg := sources.NewRegistry(
		sources.NewUSDA(cfg.USDAAPIKey, sources.Options{BaseURL: cfg.USDABaseURL, Log: log}),
		sources.NewOpenFoodFacts(cfg.OFFAppUUID, sources.Options{BaseURL: cfg.OFFBaseURL, Log: log}),
	)
	if cfg.RedisAddr != "" {
		cache, err := sources.NewRedisCache(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("Search cache disabled", "redis_addr", cfg.RedisAddr, "error", err)
			return reg
		}
		reg.UseCache(cache, cfg.SearchCacheTTL, log)
	}
	return reg
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
