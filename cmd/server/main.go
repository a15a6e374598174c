package main

import (
	"context"
	"fmt"
	"os"

	config "oee-copilot/configs"
	"oee-copilot/pkg/app"
	"oee-copilot/pkg/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "oee-copilot",
	Short: "OEE Copilot: chat about equipment availability, downtime and failure causes",
	Long: `OEE Copilot answers natural-language questions about equipment status logs.

Without a subcommand the HTTP server is started.

Examples:
  oee-copilot serve
  oee-copilot import status_logs.xlsx
  oee-copilot stats`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildApp は.envと設定を読み込み、サービス一式を組み立てます。
func buildApp() (*app.App, error) {
	if err := config.LoadEnvFile(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: .env file could not be loaded: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return app.Build(cfg, logger.Get(cfg.LogLevel))
}

// commandContext はExecute経由でなく直接呼ばれた場合もnilにならないコンテキストを返します。
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
