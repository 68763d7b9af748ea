package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/emonview/emonview/pkg/emoncms"
	"github.com/emonview/emonview/pkg/log"
	"github.com/emonview/emonview/pkg/myelectric"
	"github.com/emonview/emonview/pkg/publisher"
	"github.com/emonview/emonview/pkg/server"
	"github.com/emonview/emonview/pkg/storage"
	"github.com/emonview/emonview/pkg/types"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	client, account := emoncms.Configured()
	s := storage.Configured()
	vmCfg := myelectric.Configured()
	mqttCfg := publisher.Configured()

	appID := lflag.String("app-id", "", "ID of the app to show. Defaults to the only stored app")
	appName := lflag.String("app-name", "", "Name of the app when it is created")
	useFeedID := lflag.String("use-feed-id", "", "Power feed of the app when it is created")
	kwhFeedID := lflag.String("kwh-feed-id", "", "Cumulative kWh feed of the app when it is created")

	// the server needs the view model, which needs parsed flags, so it is
	// bound after parsing
	vmRef := &lazyViewModel{}
	srv := server.Configured(vmRef)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))
	slog.SetDefault(logger)
	log.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	defaults := types.AppConfig{Name: *appName}
	if *useFeedID != "" {
		defaults.UseFeedID = useFeedID
	}
	if *kwhFeedID != "" {
		defaults.KWHFeedID = kwhFeedID
	}
	app, _, err := storage.EnsureAppConfig(ctx, s, *appID, defaults)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load app", slog.Any("error", err))
		os.Exit(1)
	}
	ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("appID", app.ID)))

	vm, err := myelectric.New(ctx, *vmCfg, *account, client, s, app.ID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create view model", slog.Any("error", err))
		os.Exit(1)
	}
	vmRef.ViewModel = vm

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := vm.Run(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "view model stopped", slog.Any("error", err))
			cancel()
		}
	}()

	if mqttCfg.Enabled() {
		pub, err := publisher.NewMQTT(*mqttCfg)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to connect to mqtt", slog.Any("error", err))
			os.Exit(1)
		}
		defer pub.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Run(ctx, vm)
		}()
		// publishing needs data even when nobody is looking at the view
		vm.SetActive(true)
	}

	// Run will block until context is canceled or error happens
	err = srv.Run(ctx)
	cancel()
	wg.Wait()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}

// lazyViewModel lets the server be configured before the view model exists.
type lazyViewModel struct {
	*myelectric.ViewModel
}
