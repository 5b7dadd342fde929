package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ocr-gateway/config"
	"ocr-gateway/server"
)

var version = server.ServiceVersion

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the OCR HTTP gateway",
		Long: `Start the OCR HTTP gateway.

Configuration comes from environment variables (MAX_UPLOAD_SIZE, RATE_LIMIT_REQUESTS,
RATE_LIMIT_WINDOW, ...) and optionally a YAML file passed with --config.
SIGINT/SIGTERM trigger a graceful shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), cfgFile)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	root := &cobra.Command{
		Use:           "ocr-gateway",
		Short:         "Rate-limited, size-bounded HTTP front for an OCR engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file")
	root.AddCommand(serve, &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}
