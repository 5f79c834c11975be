package cmd

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/auth"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference analysis service for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger := ctx.log()
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			backend, err := server.NewBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer backend.Close() //nolint:errcheck

			if cfg.Server.GRPCHealthAddr != "" {
				listener, err := net.Listen("tcp", cfg.Server.GRPCHealthAddr)
				if err != nil {
					return fmt.Errorf("grpc health listener: %w", err)
				}
				health := server.NewHealthServer(logger)
				go func() {
					if err := health.Serve(listener); err != nil {
						logger.Error("grpc health server failed", zap.Error(err))
					}
				}()
				health.SetServing(true)
				defer health.Stop()
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           backend.Router,
				ReadHeaderTimeout: 10 * time.Second,
			}
			logger.Info("analysis service listening", zap.String("addr", addr))
			return server.Serve(srv, cfg.Server.ShutdownTimeout, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr)")
	return cmd
}

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the reference service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			token, err := auth.IssueToken(cfg.Server.JWTSecret, subject, cfg.Server.JWTAudience, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "dev", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var grpcAddr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the analysis service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client := ctx.client()
			if err := client.Health(cmd.Context()); err != nil {
				return fmt.Errorf("%s is not healthy: %w", client.BaseURL(), err)
			}
			fmt.Fprintf(out, "%s ok\n", client.BaseURL())

			if grpcAddr == "" {
				return nil
			}
			resp, err := server.CheckHealth(cmd.Context(), grpcAddr, server.HealthService)
			if err != nil {
				return fmt.Errorf("grpc health check: %w", err)
			}
			body, err := protojson.Marshal(resp)
			if err != nil {
				return fmt.Errorf("encode health response: %w", err)
			}
			fmt.Fprintf(out, "%s %s\n", grpcAddr, body)
			return nil
		},
	}

	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "Also probe the gRPC health endpoint at this address")
	return cmd
}
