package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/callrelay/internal/adapters/bridge"
	router "github.com/dkeye/callrelay/internal/adapters/http"
	"github.com/dkeye/callrelay/internal/adapters/linetcp"
	"github.com/dkeye/callrelay/internal/adapters/rtc"
	wssignal "github.com/dkeye/callrelay/internal/adapters/signal"
	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/app/call"
	"github.com/dkeye/callrelay/internal/app/orch"
	"github.com/dkeye/callrelay/internal/config"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/storage"
)

func setLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setLevel(cfg.LogLevel)

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	clk := clock.New()

	codec, err := linetcp.NewCodec(cfg.Chat.Protocol)
	if err != nil {
		return err
	}
	policy, err := app.PolicyByName(cfg.Client.Backpressure)
	if err != nil {
		return err
	}
	history, err := storage.OpenHistory(cfg.HistoryPath)
	if err != nil {
		return err
	}

	dialer := linetcp.Dialer{Timeout: cfg.Chat.DialTimeout}
	sessions := app.NewRegistry(dialer, codec, app.RegistryOptions{
		Addr:  cfg.Chat.Addr,
		Grace: cfg.Chat.GraceWindow,
		Clock: clk,
	})
	defer sessions.CloseAll()

	control := linetcp.NewRedialer(dialer, cfg.Signaling.Addr, linetcp.ReconnectPolicy{
		Interval:    cfg.Signaling.ReconnectInterval,
		MaxInterval: cfg.Signaling.MaxReconnectInterval,
		MaxAttempts: cfg.Signaling.MaxAttempts,
	}, clk)
	signaler := bridge.New(control)
	defer signaler.Close()

	clients := app.NewClientRegistry()

	var media core.MediaFactory
	var browser *wssignal.BrowserMediaFactory
	switch cfg.Media.Mode {
	case config.MediaNative:
		media = rtc.Factory{Config: rtc.DefaultWebRTCConfig(cfg.Media.ICEServers)}
	default:
		browser = wssignal.NewBrowserMediaFactory(clients)
		media = browser
	}
	calls := call.NewManager(signaler, media)

	acks := app.NewKeywordMatcher(cfg.Ack.Keywords)
	cfg.Watch(func(next *config.Config) {
		setLevel(next.LogLevel)
		acks.Update(next.Ack.Keywords)
	})

	o := &orch.Orchestrator{
		Sessions:       sessions,
		Clients:        clients,
		Calls:          calls,
		Pending:        app.NewPendingBuffer(),
		History:        history,
		Observer:       signaler,
		Control:        control,
		Acks:           acks,
		Codec:          codec,
		Policy:         policy,
		CommandTimeout: cfg.Chat.CommandTimeout,
	}
	unwire := o.Wire()
	defer unwire()

	ws := &wssignal.SignalWSController{
		Orch:       o,
		Media:      browser,
		Limiter:    wssignal.NewCallRateLimiter(5, 10*time.Second),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, o, ws),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("CallRelay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := control.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		calls.Close(context.Background())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	return g.Wait()
}
