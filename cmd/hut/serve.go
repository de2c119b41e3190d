package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hutracker/internal/app"
	"hutracker/internal/events"
	"hutracker/internal/export"
	"hutracker/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				e := ws.Engine
				pub, err := events.NewPublisher(e.Config.Events.NATSURL)
				if err != nil {
					return fmt.Errorf("connect event bus: %w", err)
				}
				defer pub.Close()
				e.Publisher = pub

				if addr == "" {
					addr = e.Config.Server.Addr
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, e)

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				log.Info().Str("addr", addr).Str("base_path", basePath).Bool("nats", e.Config.Events.NATSURL != "").Int("webhooks", len(e.Config.Webhooks)).Msg("serving")
				fmt.Printf("Serving Hutracker API on http://%s%s (OpenAPI at %s/openapi.json, docs at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr in config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func exportCmd() *cobra.Command {
	var out string
	var toS3 bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Snapshot every initiative and its summary as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				today, err := todayFlag(ws)
				if err != nil {
					return err
				}
				if today.IsZero() {
					today = ws.Engine.Now().In(ws.Engine.Location)
				}
				var dest export.Destination = export.FileDestination{Path: out}
				target := out
				if toS3 {
					s3cfg := ws.Engine.Config.Export.S3
					d, err := export.NewS3Destination(ctx, s3cfg)
					if err != nil {
						return err
					}
					dest = d
					target = "s3://" + s3cfg.Bucket + "/" + s3cfg.Key
				}
				n, err := export.Run(ctx, ws.Engine, today, dest)
				if err != nil {
					return err
				}
				if target != "" && target != "-" {
					log.Info().Str("target", target).Int("bytes", n).Msg("export written")
					if !viper.GetBool("json") {
						fmt.Printf("Exported %d bytes to %s\n", n, target)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	cmd.Flags().BoolVar(&toS3, "s3", false, "upload to the bucket configured under export.s3")
	return cmd
}
