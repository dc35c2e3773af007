package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/talkdrop/talkdrop/internal/config"
	"github.com/talkdrop/talkdrop/internal/server"
	"github.com/talkdrop/talkdrop/internal/store"
)

func newServeCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the TalkDrop chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil {
				log.Printf(".env not loaded, using environment: %v", err)
			}
			cfg := config.Load()

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}

			hub := server.NewHub(st, cfg)
			sweeper := server.NewSweeper(st, hub, cfg)
			srv := server.New(hub, st, cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Printf("talkdrop server listening on :%s (retention %s)", cfg.ServerPort, cfg.MessageRetention)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				err := sweeper.Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				<-ctx.Done()
				log.Println("shutting down...")
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutCtx)
			})

			if err := g.Wait(); err != nil {
				return err
			}
			log.Println("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "path to .env file")
	return cmd
}
