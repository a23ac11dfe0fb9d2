package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tycoon/internal/api"
	"tycoon/internal/catalog"
	"tycoon/internal/config"
	"tycoon/internal/game"
	"tycoon/internal/journal"
	"tycoon/internal/metrics"
	"tycoon/internal/relay"

	"github.com/mdp/qrterminal/v3"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Sim.SlogLevel()}))
	hub := api.NewHub(logger.With("component", "ws"))
	collectors := metrics.New(nil)
	sess, err := game.New(game.Options{
		Config:    cfg.Sim,
		Catalogue: catalog.Load(catalog.Default(cfg.Sim.CatalogDir), logger),
		Presenter: hub,
		Metrics:   collectors,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("session init failed", "err", err)
		os.Exit(1)
	}

	store, err := journal.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath, logger)
	if err != nil {
		logger.Error("journal open failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	g, gctx := errgroup.WithContext(ctx)
	feed := sess.Bus().Feed()

	wsFeed, detachWS := feed.Subscribe(256)
	defer detachWS()
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return hub.Pump(gctx, wsFeed) })

	journalFeed, detachJournal := feed.Subscribe(1024)
	defer detachJournal()
	recorder := journal.NewRecorder(journal.DefaultRecorderConfig(), store, sess.ID(), sess.Clock(), logger.With("component", "journal"))
	g.Go(func() error { return recorder.Run(gctx, journalFeed) })

	if cfg.DiscordToken != "" {
		rl, err := relay.NewDiscord(cfg.DiscordToken, cfg.DiscordChannelID, logger.With("component", "relay"))
		if err != nil {
			logger.Error("discord relay init failed", "err", err)
			os.Exit(1)
		}
		relayFeed, detachRelay := feed.Subscribe(64)
		defer detachRelay()
		g.Go(func() error { return rl.Run(gctx, relayFeed) })
	}

	g.Go(func() error {
		err := sess.Run(gctx)
		logger.Info("simulation stopped", "ended", sess.Ended(), "err", err)
		return err
	})

	server := api.New(api.Options{
		Logger:  logger,
		Session: sess,
		Hub:     hub,
		Journal: store,
		Metrics: collectors.Handler(),
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info("tycoon api listening", "addr", cfg.Addr, "session_id", sess.ID().String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.PrintQR && cfg.PublicURL != "" {
		qrterminal.GenerateHalfBlock(cfg.PublicURL, qrterminal.L, os.Stdout)
	}

	if err := g.Wait(); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("tycoon api shutdown", "journal_written", recorder.Written(), "journal_failed", recorder.Failed())
}
