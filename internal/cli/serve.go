package cli

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

	"github.com/ad/personsearch/internal/document"
	"github.com/ad/personsearch/internal/handlers"
	"github.com/ad/personsearch/internal/search"
)

func newServeCmd() *cobra.Command {
	var (
		addr string
		seed bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP search API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			provider, client, err := newProvider()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.WaitForReady(ctx, cfg.ReadyTimeout); err != nil {
				log.Warn().Err(err).Msg("manticore not ready, API will start anyway")
			} else if seed {
				if err := seedIfMissing(ctx, provider, cfg.SeedDir); err != nil {
					log.Warn().Err(err).Msg("failed to seed index")
				}
			}

			app := handlers.NewAppState(provider, client, cfg.SeedDir, log)
			srv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      app.Routes(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Str("index", client.IndexName()).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			log.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides PERSONSEARCH_ADDR)")
	cmd.Flags().BoolVar(&seed, "seed", true, "Create and load the index from the seed directory when it does not exist")

	return cmd
}

// seedIfMissing builds the index from dir unless it already exists
func seedIfMissing(ctx context.Context, provider *search.Provider, dir string) error {
	status, err := provider.IndexStatus(ctx)
	if err != nil {
		return err
	}
	if status.Exists {
		log.Info().Int64("documents", status.DocumentCount).Msg("index already exists, skipping seed")
		return nil
	}

	start := time.Now()
	docs, err := document.LoadDirectory(dir, log)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		log.Warn().Str("dir", dir).Msg("no seed documents found")
		return provider.CreateIndex(ctx)
	}

	if err := provider.Rebuild(ctx, docs); err != nil {
		return err
	}
	log.Info().Int("documents", len(docs)).Dur("duration", time.Since(start)).Msg("index seeded")
	return nil
}
