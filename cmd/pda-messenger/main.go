package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MatusOllah/slogcolor"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/spf13/pflag"

	"github.com/kabili207/pda-messenger/pkg/auth"
	"github.com/kabili207/pda-messenger/pkg/config"
	"github.com/kabili207/pda-messenger/pkg/hooks"
	"github.com/kabili207/pda-messenger/pkg/messenger"
	"github.com/kabili207/pda-messenger/pkg/models"
	"github.com/kabili207/pda-messenger/pkg/routes"
	"github.com/kabili207/pda-messenger/pkg/store"
)

func main() {
	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	v, err := config.LoadConfig(fs)
	if err != nil {
		slog.Error("unable to load configuration", "error", err)
		os.Exit(1)
	}
	cfg, err := config.ParseConfig(v)
	if err != nil {
		os.Exit(1)
	}

	logger := slog.New(slogcolor.NewHandler(os.Stderr, &slogcolor.Options{
		Level:       cfg.LogLevel,
		TimeFormat:  time.DateTime,
		SrcFileMode: slogcolor.ShortFile,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Configuration, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores := store.NewMemoryStores()
	if cfg.HasDatabase() {
		db, err := stores.OpenAccounts(cfg.DatabaseDSN())
		if err != nil {
			return err
		}
		defer db.Close()
	}
	for _, s := range cfg.Messenger.Stations {
		stores.History.EnsureStation(models.StationID(s))
	}

	if cfg.SessionSecret == "" {
		secret, err := auth.RandomHex(32)
		if err != nil {
			return err
		}
		cfg.SessionSecret = secret
		slog.Warn("no session secret configured, admin sessions will not survive a restart")
	}

	presence := routes.NewPresenceNotifier()
	hook := new(hooks.MessengerHook)
	router := messenger.New(messenger.Options{
		Stores:           stores,
		Notifier:         messenger.Notifiers{hook, presence},
		Logger:           logger,
		MaxMessageLength: cfg.Messenger.MaxMessageLength,
		DedupeWindow:     cfg.Messenger.DedupeWindow,
	})
	defer router.Close()

	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       logger,
	})
	err := server.AddHook(hook, &hooks.MessengerHookOptions{
		Server:    server,
		Router:    router,
		TopicRoot: cfg.MQTT.TopicRoot,
	})
	if err != nil {
		return err
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: cfg.MQTT.ListenAddr})
	if err := server.AddListener(tcp); err != nil {
		return err
	}

	errs := make(chan error, 2)
	go func() {
		if err := server.Serve(); err != nil {
			errs <- err
		}
	}()

	web := &routes.WebRouter{}
	web.Initialize(*cfg, router, presence)
	go func() {
		if err := web.ListenAndServe(ctx); err != nil {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err = <-errs:
	}
	if cerr := server.Close(); cerr != nil {
		slog.Error("error closing broker", "error", cerr)
	}
	return err
}
