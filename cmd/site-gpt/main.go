package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/site-gpt/pkg/config"
	"github.com/mikeboe/site-gpt/pkg/mcpserver"
	"github.com/mikeboe/site-gpt/pkg/server"
)

var (
	configPath string
	apiKey     string
	siteURL    string
	question   string
)

func main() {
	// Setup structured logging
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	// Load .env file
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "site-gpt",
		Short:         "Ask questions about a website",
		Long:          `site-gpt crawls a website from its sitemap, indexes it and answers questions about it with cited sources.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults to $SITEGPT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key of the configured LLM provider")

	askCmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer questions about a site interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAsk(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	askCmd.Flags().StringVarP(&siteURL, "url", "u", "", "Sitemap URL of the site")
	askCmd.Flags().StringVarP(&question, "question", "q", "", "Ask a single question and exit")

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the assistant as an MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, closeBackend, err := server.NewFromConfig(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeBackend()

			srv, err := mcpserver.NewServer(svc)
			if err != nil {
				return err
			}
			err = srv.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	rootCmd.AddCommand(askCmd, mcpCmd)
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(configPathOrEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if apiKey != "" {
		cfg.SetAPIKey(apiKey)
	}
	return cfg, nil
}

func configPathOrEnv() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("SITEGPT_CONFIG")
}
