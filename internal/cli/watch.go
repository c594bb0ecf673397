package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imapntfy/internal/config"
	"imapntfy/internal/delivery"
	"imapntfy/internal/history"
	"imapntfy/internal/integration/ntfy"
	"imapntfy/internal/integration/telegram"
	"imapntfy/internal/integration/webpush"
	"imapntfy/internal/mail"
	"imapntfy/internal/server"
	"imapntfy/internal/util"
	"imapntfy/internal/watcher"

	"golang.org/x/sync/errgroup"
)

type WatchCmd struct {
	Config string `help:"Path to the TOML config file" short:"c" required:"" type:"path"`
}

func (c *WatchCmd) Run(ctx *Context) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}

	logger := util.NewLogger(ctx.Globals.Verbose || cfg.VerboseLogging)
	logger.Info("Starting imapntfy", "version", ctx.Version, "accounts", len(cfg.Accounts))

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(sigCtx, cfg, logger, ctx.Version); err != nil {
		return util.LogError(logger, "Fatal error", err)
	}
	logger.Info("Stopped")
	return nil
}

// Run wires the delivery channels, the optional history store and status
// server, and the watcher fleet, then blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) error {
	var (
		store    *history.Store
		recorder delivery.Recorder
	)
	if cfg.History.Enabled() {
		var err error
		store, err = history.NewStore(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer store.Close()
		recorder = store
	}

	publisher, err := newPublisher(cfg, logger, recorder)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		names = append(names, acct.Name)
	}
	board := watcher.NewBoard(names...)

	connect := func(ctx context.Context, acct *config.Account) (watcher.Session, error) {
		sess, err := mail.Connect(ctx, acct, mail.Options{
			DialTimeout: cfg.Watch.DialTimeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return sess, nil
	}

	opts := watcher.OptionsFrom(cfg.Watch)
	watchers := make([]*watcher.Watcher, 0, len(cfg.Accounts))
	for i := range cfg.Accounts {
		watchers = append(watchers, watcher.New(&cfg.Accounts[i], connect, publisher, board, logger, opts))
	}
	fleet := watcher.NewFleet(watchers, board, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return fleet.Run(gctx)
	})
	if cfg.Status.Enabled() {
		srv := server.New(cfg.Status, board, store, logger, version)
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}
	return g.Wait()
}

func newPublisher(cfg *config.Config, logger *slog.Logger, recorder delivery.Recorder) (*delivery.Publisher, error) {
	publisher := delivery.NewPublisher(logger, recorder)
	publisher.RegisterSender(delivery.ChannelNtfy, ntfy.NewSender(nil, logger))
	publisher.RegisterSender(delivery.ChannelWebPush, webpush.NewSender(&http.Client{Timeout: 15 * time.Second}, logger))

	client, err := telegram.NewClient(cfg.Telegram.BotToken)
	if err != nil {
		return nil, err
	}
	if client != nil {
		publisher.RegisterSender(delivery.ChannelTelegram, telegram.NewSender(client, logger))
	}

	return publisher, nil
}
