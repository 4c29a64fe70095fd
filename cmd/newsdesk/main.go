// Newsdesk ingests deepfake news from several providers, ranks it and
// publishes it on a staggered schedule.
//
// Usage:
//
//	newsdesk serve            # HTTP API plus in-process ingest/publish jobs
//	newsdesk run              # one ingest batch, then publish what is due
//	newsdesk ingest           # one fetch-and-schedule batch
//	newsdesk publish          # publish every due article
//	newsdesk pending          # list the publish queue
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/config"
)

var version = "dev"

type globalFlags struct {
	configPath string
	envFile    string
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:           "newsdesk",
		Short:         "Deepfake news ingestion and publishing scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "newsdesk.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the config")

	rootCmd.AddCommand(serveCmd(&flags))
	rootCmd.AddCommand(runCmd(&flags))
	rootCmd.AddCommand(ingestCmd(&flags))
	rootCmd.AddCommand(publishCmd(&flags))
	rootCmd.AddCommand(pendingCmd(&flags))
	rootCmd.AddCommand(scheduleCmd(&flags))
	rootCmd.AddCommand(tagsCmd(&flags))
	rootCmd.AddCommand(hashPasswordCmd())
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the dotenv file, then the YAML config, and installs the
// default logger at the configured level.
func loadConfig(flags *globalFlags) (config.Config, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}

	level, _ := cfg.Log.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("newsdesk %s\n", version)
		},
	}
}
