package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"xharvest/internal/cmdlog"
	"xharvest/internal/config"
	"xharvest/internal/logging"
	"xharvest/internal/metrics"
)

var (
	cfgPath string
	envPath string
)

func main() {
	root := &cobra.Command{
		Use:           "xharvest",
		Short:         "Fetch posts by id through a browser and store them as tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./xharvest.yaml", "config path")
	root.PersistentFlags().StringVar(&envPath, "env-file", ".env", "optional .env file loaded before the config")
	root.AddCommand(initCmd(), scrapeCmd(), retryCmd(), parseCmd(), statusCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig loads .env and the YAML config, then installs logging and metrics.
func loadConfig() (config.Config, error) {
	if err := config.LoadEnvFile(envPath); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		cfg.ResolveEnv()
	} else if err != nil {
		return cfg, err
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	metrics.StartServer(cfg.Metrics.Addr)
	return cfg, nil
}

func initCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run("init", func() error {
				if err := config.Save(path, config.Default()); err != nil {
					return err
				}
				abs, _ := filepath.Abs(path)
				fmt.Println("Config written to:", abs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "./xharvest.yaml", "path to write config")
	return cmd
}
