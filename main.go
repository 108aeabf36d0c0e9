package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ahmet0524/pastirmaadasi-sub000/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "pastirma",
	Short: "Payment verification and order service",
	Long: `Verifies card payments with the processor, records each paid order
exactly once, and keeps coupon usage counters in line with order history.`,
	SilenceUsage: true,
}

func init() {
	// Running without a subcommand serves.
	rootCmd.RunE = runServe
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reconcileCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
