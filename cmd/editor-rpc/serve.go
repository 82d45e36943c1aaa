package main

import (
	"context"
	"editor-rpc/config"
	"editor-rpc/handlers"
	"editor-rpc/middleware"
	"editor-rpc/registry"
	"editor-rpc/server"
	"editor-rpc/transport"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the editor side and answer commands until interrupted",
	Long: `Run the editor side of the channel.

--network unix|tcp listens for newline framed JSON on --address.
--network ws|http serves the HTTP surface (/ws, /rpc, /healthz) on --address.
--http-addr additionally serves the HTTP surface next to a stream listener.
With --etcd-endpoints the listen address is advertised for discovery.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer log.Sync()
	gin.SetMode(gin.ReleaseMode)

	settings, err := handlers.OpenSettings(cfg.SettingsFile)
	if err != nil {
		return err
	}

	d := server.NewDispatcher(log)
	d.Use(middleware.LoggingMiddleware(log.Named("requests")))
	if cfg.RateLimit > 0 {
		d.Use(middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	d.Use(middleware.TimeOutMiddleware(cfg.HandlerTimeout))
	if err := handlers.Register(d, settings); err != nil {
		return err
	}

	srv := server.New(d, log)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errc := make(chan error, 2)
	switch cfg.Network {
	case transport.NetworkUnix, transport.NetworkTCP:
		ln, err := srv.Listen(cfg.Network, cfg.Address)
		if err != nil {
			return err
		}
		go func() { errc <- srv.Serve(ln) }()
		if cfg.HTTPAddr != "" {
			go func() { errc <- srv.ListenAndServeHTTP(cfg.HTTPAddr) }()
		}
	case transport.NetworkWebSocket, transport.NetworkHTTP:
		go func() { errc <- srv.ListenAndServeHTTP(cfg.Address) }()
	default:
		return fmt.Errorf("%w: %q", transport.ErrUnknownNetwork, cfg.Network)
	}

	if len(cfg.EtcdEndpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints, log)
		if err != nil {
			return fmt.Errorf("etcd: %w", err)
		}
		defer reg.Close()

		actx, acancel := context.WithTimeout(ctx, cfg.DialTimeout)
		err = srv.Advertise(actx, reg, cfg.EtcdService, registry.ServiceInstance{
			Network: cfg.Network,
			Addr:    cfg.Address,
			Version: appVersion,
		}, cfg.EtcdTTL)
		acancel()
		if err != nil {
			srv.Shutdown(shutdownTimeout)
			return err
		}
	}

	log.Info("serving",
		zap.String("network", cfg.Network),
		zap.String("address", cfg.Address),
		zap.Strings("commands", d.Commands()))

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		if err != nil {
			log.Error("listener failed", zap.Error(err))
			srv.Shutdown(shutdownTimeout)
			return err
		}
	}
	return srv.Shutdown(shutdownTimeout)
}
