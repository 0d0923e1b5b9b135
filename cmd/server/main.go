package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/CoStudy/internal/adapters/backend"
	router "github.com/dkeye/CoStudy/internal/adapters/http"
	"github.com/dkeye/CoStudy/internal/adapters/rtc"
	sig "github.com/dkeye/CoStudy/internal/adapters/signal"
	"github.com/dkeye/CoStudy/internal/app"
	"github.com/dkeye/CoStudy/internal/app/orch"
	"github.com/dkeye/CoStudy/internal/app/sfu"
	"github.com/dkeye/CoStudy/internal/config"
	transport "github.com/dkeye/CoStudy/internal/transport/http"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config.InitLogger(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.ApplyLogLevel(cfg.LogLevel)

	be, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open backend")
	}
	defer be.Close()

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Channels: app.NewChannelManager(),
		Policy:   app.SimplePolicy{},
		Relays:   sfu.NewRelayManager(),
	}

	limiter := sig.NewJoinLimiter(cfg.Signal.JoinRate, cfg.Signal.JoinBurst, 10*time.Minute)
	go limiter.Run(ctx.Done())

	ctl := sig.NewSignalWSController(o, sig.Options{
		Limiter:    limiter,
		RTC:        rtc.DefaultWebRTCConfig(cfg.Signal.ICEServers...),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	})
	api := &transport.Handler{Store: be.Store, Feed: be.Feed, HistoryLimit: cfg.Session.HistoryLimit}

	r := router.SetupRouter(ctx, cfg, ctl, api)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("CoStudy gateway started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
