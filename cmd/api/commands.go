package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tastebud/internal/config"
	"tastebud/internal/platform/logger"
)

type rootOptions struct {
	cfgFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tastebud",
		Short:         "Personalized restaurant menu recommendations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is ./config.json)")

	root.AddCommand(newServeCmd(opts), newIngestCmd(opts), newTokenCmd(opts))
	return root
}

// setup loads config and builds the logger shared by every subcommand.
func (o *rootOptions) setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}
	log, err := logger.New(cfg.Environment)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating logger: %w", err)
	}
	return cfg, log, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           newRouter(a),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("listening",
					"addr", srv.Addr,
					"llm_provider", cfg.LLM.Provider,
					"generator", a.generatorName,
					"generator_available", a.recommender.GeneratorAvailable())
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load processed restaurant JSON files into the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			if dir == "" {
				dir = cfg.Ingest.Dir
			}

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.ingester.IngestDir(cmd.Context(), dir)
			if err != nil {
				return fmt.Errorf("ingest stopped after %d restaurants: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d restaurants from %s\n", n, dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of processed restaurant *.json files (default from config)")
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			tokens, err := newTokenManager(cfg)
			if err != nil {
				return err
			}
			token, err := tokens.GenerateToken(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed in the token")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
