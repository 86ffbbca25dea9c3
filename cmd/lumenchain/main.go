package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/sanketsaagar/lumenchain/internal/config"
	"github.com/sanketsaagar/lumenchain/internal/node"
)

const (
	appName = "lumenchain"
	version = "v0.1.0"
)

var (
	configPath string
	devMode    bool
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "LumenChain L1 BFT blockchain node",
	Long:          "LumenChain L1: a BFT blockchain node with deterministic execution and crash-safe storage.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runNode,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to TOML configuration file")
	rootCmd.Flags().BoolVar(&devMode, "dev", false, "Run with the in-code development configuration")
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	setupLogger(cfg.Node.LogLevel)

	n, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize node: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("Received shutdown signal...")
		cancel()
	}()

	return n.Run(ctx)
}

func resolveConfig() (*config.Config, error) {
	switch {
	case devMode:
		log.Info("Running in development mode")
		return config.Dev(), nil
	case configPath != "":
		return config.Load(configPath)
	default:
		return config.Default(), nil
	}
}

func setupLogger(level string) {
	var lvl slog.Level
	switch level {
	case "trace":
		lvl = log.LevelTrace
	case "debug":
		lvl = log.LevelDebug
	case "warn":
		lvl = log.LevelWarn
	case "error":
		lvl = log.LevelError
	default:
		lvl = log.LevelInfo
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, false)))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
