package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tycoon/internal/catalog"
	"tycoon/internal/config"
	"tycoon/internal/game"
	"tycoon/internal/journal"
	"tycoon/internal/modal"
	"tycoon/internal/notify"

	"golang.org/x/sync/errgroup"
)

// autoAck answers every prompt with yes so a session runs unattended.
type autoAck struct {
	queue *modal.Queue
	log   *slog.Logger
}

func (a *autoAck) Present(_ context.Context, p modal.Prompt) {
	a.log.Info("modal", "kind", p.Kind.String(), "title", p.Title, "message", p.Message)
	if err := a.queue.Respond(p.ID, true); err != nil {
		a.log.Warn("auto answer failed", "modal_id", p.ID, "err", err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	cfg.Sim.StartSpeed = cfg.Speed

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Sim.SlogLevel()}))
	presenter := &autoAck{log: logger.With("component", "modal")}
	sess, err := game.New(game.Options{
		Config:    cfg.Sim,
		Catalogue: catalog.Load(catalog.Default(cfg.Sim.CatalogDir), logger),
		Presenter: presenter,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("session init failed", "err", err)
		os.Exit(1)
	}
	presenter.queue = sess.Modals()

	store, err := journal.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath, logger)
	if err != nil {
		logger.Error("journal open failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.MaxHours > 0 {
		sess.Bus().HourAdvanced.Subscribe(func(n notify.HourAdvanced) {
			if n.Time.Elapsed >= cfg.MaxHours {
				cancel()
			}
		})
	}

	feed, detach := sess.Bus().Feed().Subscribe(1024)
	recorder := journal.NewRecorder(journal.DefaultRecorderConfig(), store, sess.ID(), sess.Clock(), logger.With("component", "journal"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return recorder.Run(gctx, feed) })
	g.Go(func() error {
		defer detach()
		return sess.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-sess.Done():
			logger.Info("game ended", "outcome", sess.Dashboard().Outcome.Result)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	logger.Info("worker started", "session_id", sess.ID().String(), "speed", cfg.Speed, "max_hours", cfg.MaxHours)
	if err := g.Wait(); err != nil {
		logger.Error("worker failed", "err", err)
		os.Exit(1)
	}

	d := sess.Dashboard()
	attrs := []any{
		"sim_time", d.Clock.Time.String(),
		"net_worth", d.Ledger.NetWorth,
		"level", d.Progression.Level,
		"achievements", d.Achievements,
		"journal_written", recorder.Written(),
	}
	if d.Outcome != nil {
		attrs = append(attrs, "outcome", string(d.Outcome.Result))
	}
	logger.Info("worker shutdown", attrs...)
}
