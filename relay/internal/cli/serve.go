package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/alertrelay/relay/internal/api"
	"github.com/obsidianstack/alertrelay/relay/internal/apitransport"
	"github.com/obsidianstack/alertrelay/relay/internal/auth"
	"github.com/obsidianstack/alertrelay/relay/internal/config"
	"github.com/obsidianstack/alertrelay/relay/internal/dispatch"
	"github.com/obsidianstack/alertrelay/relay/internal/healthsvc"
	"github.com/obsidianstack/alertrelay/relay/internal/metrics"
	"github.com/obsidianstack/alertrelay/relay/internal/probe"
	"github.com/obsidianstack/alertrelay/relay/internal/proxy"
	"github.com/obsidianstack/alertrelay/relay/internal/store"
	"github.com/obsidianstack/alertrelay/relay/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long:  "Serves the REST API, /metrics, the WebSocket delivery feed and the gRPC health service, runs the configured probes and reloads transports when the config file changes.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	r := cfg.Relay

	slog.Info("relay starting",
		"config", configPath,
		"http_port", r.HTTPPort,
		"grpc_port", r.GRPCPort,
		"auth_mode", r.Auth.Mode,
		"transports", len(r.Transports),
		"probes", len(r.Probes),
	)
	for _, t := range r.Transports {
		slog.Debug("transport configured", "transport", t)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Delivery history with background TTL eviction.
	st := store.New(r.History.TTL, r.History.MaxEntries)
	go st.Run(ctx)

	reg := metrics.New()
	client := proxy.NewClient(r.Proxy.Policy(), r.Delivery.Timeout)
	d := dispatch.New(apitransport.New(client), st, reg, r.Delivery.Concurrency)
	d.SetTargets(dispatch.TargetsFrom(r.Transports))

	health := healthsvc.New()
	health.Update(len(r.Transports))

	probes := probe.NewSupervisor(client, d, reg)
	if err := probes.Apply(ctx, r.Probes); err != nil {
		return err
	}
	defer probes.Stop()

	hub := ws.New(st, ws.DefaultInterval)
	go hub.Run(ctx)

	apiHandler := api.New(d, st, reg)
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/metrics", apiHandler)
	mux.Handle("/ws/deliveries", hub)

	key := r.Auth.Key()
	header := r.Auth.EffectiveHeader()
	if r.Auth.Mode == "apikey" && key == "" {
		slog.Warn("auth mode is apikey but no key is set, API is open", "key_env", r.Auth.KeyEnv)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", r.HTTPPort),
		Handler:           auth.Middleware(r.Auth.Mode, header, key, "/metrics", "/api/v1/health")(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		slog.Info("HTTP server listening", "port", r.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if r.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.GRPCPort))
		if err != nil {
			return fmt.Errorf("listen on gRPC port %d: %w", r.GRPCPort, err)
		}
		g := healthsvc.NewServer(health, r.Auth.Mode, header, key)
		go func() {
			if err := healthsvc.Serve(ctx, health, g, lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	go func() {
		err := config.Watch(ctx, configPath, func(c *config.Config) {
			d.SetTargets(dispatch.TargetsFrom(c.Relay.Transports))
			health.Update(len(c.Relay.Transports))
			if err := probes.Apply(ctx, c.Relay.Probes); err != nil {
				slog.Error("probe reload failed, keeping previous probes", "err", err)
			}
			slog.Info("transports reloaded; listener, auth, proxy and history settings need a restart",
				"transports", len(c.Relay.Transports))
		})
		if err != nil {
			slog.Error("config watch stopped", "err", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("relay stopping on server error", "err", err)
		cancel()
		shutdown(httpSrv)
		return err
	}

	slog.Info("relay shutting down")
	shutdown(httpSrv)
	return nil
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown", "err", err)
	}
}
