package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cppla/orderimages/cleanup"
	"github.com/cppla/orderimages/routes"
	"github.com/cppla/orderimages/utils"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the cleanup scheduler",
		Example: `  # Start on the configured APP_PORT
  orderimages serve

  # Override the port
  orderimages serve --port 9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			if port != "" {
				a.cfg.AppPort = port
			}

			r := routes.SetupRouter(routes.Dependencies{
				Config:  a.cfg,
				DB:      a.db,
				Redis:   a.redis,
				Library: a.library,
				Reaper:  a.reaper,
				Mailer:  utils.NewMailer(a.cfg),
				Logger:  a.logger,
			})

			ctx, cancel := context.WithCancel(context.Background())
			scheduler := cleanup.NewScheduler(a.db, a.reaper, time.Duration(a.cfg.CleanupCheckMinutes)*time.Minute, a.logger)
			go scheduler.Start(ctx)

			a.logger.Info("starting server", zap.String("port", a.cfg.AppPort), zap.String("order_storage", a.cfg.OrderStorage), zap.String("media_driver", a.cfg.MediaDriver))
			err = utils.GraceServer(":"+a.cfg.AppPort, r, cancel, func() { _ = a.logger.Sync() })
			cancel()
			return err
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (defaults to APP_PORT)")

	return cmd
}
