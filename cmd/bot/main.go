package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load .env file", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.Error("Command failed", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "lingua-bot",
		Short:         "Bilingual chatbot that learns from corrections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), configPath, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Serve(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "telegram",
		Short: "Run the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), configPath, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Telegram(cmd.Context())
		},
	})

	var migrateUser string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy local conversations, titles and profiles to the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := migrate(cmd.Context(), configPath, migrateUser, logger)
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d conversations, %d titles, profile=%t\n",
					r.UserID, r.Conversations, r.Titles, r.Profile)
			}
			return err
		},
	}
	migrateCmd.Flags().StringVarP(&migrateUser, "user", "u", "", "migrate only this user id (default: every user)")
	root.AddCommand(migrateCmd)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return root
}

var version = "dev"
