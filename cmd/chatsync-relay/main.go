package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/relay"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	debug    bool
	tokenTTL time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "chatsync-relay",
	Short:         "Document and blob relay for chatsync devices",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.NewConsole("chatsync-relay", debug)
		defer func() { _ = logger.Sync() }()

		cfg, err := relay.LoadConfig()
		if err != nil {
			return err
		}
		docs, err := openDocs(cfg, logger)
		if err != nil {
			return err
		}
		blobs, err := relay.NewBlobStore(cfg.BlobDir)
		if err != nil {
			_ = docs.Close()
			return err
		}
		srv := relay.NewServer(cfg, docs, blobs, logger)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			_ = docs.Close()
			return err
		case <-quit:
		}

		logger.Info("shutting down relay")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := multierr.Append(srv.Shutdown(ctx), docs.Close()); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("relay stopped")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply document store migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.NewConsole("chatsync-relay", debug)
		defer func() { _ = logger.Sync() }()

		cfg, err := relay.LoadConfig()
		if err != nil {
			return err
		}
		docs, err := openDocs(cfg, logger)
		if err != nil {
			return err
		}
		return docs.Close()
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := relay.LoadConfig()
		if err != nil {
			return err
		}
		ttl := cfg.TokenTTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		token, err := relay.GenerateToken(args[0], cfg.JWTSecret, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func openDocs(cfg relay.Config, logger *zap.Logger) (*relay.DocStore, error) {
	docs, err := relay.OpenDocStore(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	version, err := docs.Migrate()
	if err != nil {
		_ = docs.Close()
		return nil, err
	}
	logger.Info("document store ready", zap.String("driver", cfg.DBDriver), zap.Uint("version", version))
	return docs, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default RELAY_TOKEN_TTL)")
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
