package cmds

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/chartchat/pkg/events"
	"github.com/go-go-golems/chartchat/pkg/web"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func NewServeCommand() *cobra.Command {
	var (
		addr        string
		sessionIdle time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard pages with the chat assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			router, err := events.NewRouter(events.WithVerbose(viper.GetBool("verbose")))
			if err != nil {
				return err
			}
			defer func(router *events.Router) {
				_ = router.Close()
			}(router)
			router.AddHandler("log-turns", events.TopicTurns, events.LogTurns)

			app, err := NewApp(WithEventSink(events.NewWatermillSink(router.Publisher, events.TopicTurns)))
			if err != nil {
				return err
			}
			srv, err := web.NewServer(app.Catalog, app.Loader, app.Assistant, web.WithSessionIdle(sessionIdle))
			if err != nil {
				return err
			}
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return router.Run(ctx)
			})
			eg.Go(func() error {
				srv.ExpireSessions(ctx, time.Minute)
				return nil
			})
			eg.Go(func() error {
				select {
				case <-router.Running():
				case <-ctx.Done():
					return nil
				}
				log.Info().
					Str("addr", addr).
					Str("provider", string(app.Provider)).
					Str("model", app.Model).
					Bool("assistant", app.Assistant.Enabled()).
					Msg("Serving dashboard")
				err := httpServer.ListenAndServe()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
			eg.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			err = eg.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8501", "Listen address")
	cmd.Flags().DurationVar(&sessionIdle, "session-idle", web.DefaultSessionIdle, "Drop sessions unused for this long")
	return cmd
}
