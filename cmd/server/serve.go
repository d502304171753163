package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/dkeye/Meet/internal/adapters/eventws"
	"github.com/dkeye/Meet/internal/adapters/health"
	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/keepalive"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/ingest"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/broker"
	"github.com/dkeye/Meet/internal/janus"
	"github.com/dkeye/Meet/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, WebSocket and gRPC servers and the event ingestor",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Debug())
	if err != nil {
		return err
	}
	defer st.Close()

	br, err := broker.Dial(cfg.Broker.URL, cfg.Broker.Timeout)
	if err != nil {
		return err
	}
	defer br.Close()
	pub := br.Publisher()
	defer pub.Close()

	gw := janus.NewClient(cfg.Janus.URL, janus.WithTimeout(cfg.Janus.Timeout), janus.WithAPISecret(cfg.Janus.APISecret))
	media := orch.New(gw, st)
	registry := app.NewRegistry()
	meetings := app.NewMeetingService(st, media, pub, app.SimplePolicy{})
	meetings.Channels = registry

	monitor := health.NewMonitor("meet", cfg.Health.Interval)
	monitor.Add("media", func(ctx context.Context) error {
		if !media.IsAlive(ctx) {
			return errors.New("media server unreachable")
		}
		return nil
	})
	monitor.Add("database", st.Ping)
	monitor.Add("broker", func(context.Context) error {
		if !br.Healthy() {
			return broker.ErrUnavailable
		}
		return nil
	})

	events := &eventws.Handler{
		Broker:    br,
		Meetings:  meetings,
		Waiting:   meetings.Waiting,
		Registry:  registry,
		Keepalive: keepalive.New(cfg.PingPeriod),
		ReadLimit: cfg.ReadLimit,
	}
	r := router.SetupRouter(ctx, cfg, router.Deps{Meetings: meetings, Events: events, Health: monitor})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	gsrv := grpc.NewServer()
	monitor.RegisterGRPC(gsrv)
	reflection.Register(gsrv)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	ingestor := ingest.New(st, pub)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Meet server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health started")
		if err := gsrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return ingestor.Run(gctx, br.Feed(cfg.Broker.EventsQueue))
	})
	g.Go(func() error {
		return monitor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		registry.CancelAll()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		gsrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
