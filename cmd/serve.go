package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmehdipour/dbrelay/internal/bootstrap"
	"github.com/jmehdipour/dbrelay/internal/bus"
	"github.com/jmehdipour/dbrelay/internal/config"
	"github.com/jmehdipour/dbrelay/internal/db"
	"github.com/jmehdipour/dbrelay/internal/deadletter"
	"github.com/jmehdipour/dbrelay/internal/dispatcher"
	httpSrv "github.com/jmehdipour/dbrelay/internal/http"
	"github.com/jmehdipour/dbrelay/internal/ledger"
	"github.com/jmehdipour/dbrelay/internal/logger"
	"github.com/jmehdipour/dbrelay/internal/relay"
	"github.com/jmehdipour/dbrelay/internal/repository"
	"github.com/jmehdipour/dbrelay/internal/service/notify"
	"github.com/jmehdipour/dbrelay/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for notifications and run the relays, the block confirmer and the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)
		defer func() { _ = log.Sync() }()

		dbx, err := bootstrap.Postgres(cfg)
		if err != nil {
			return err
		}
		defer dbx.Close()

		topics, closeBus, err := bootstrap.Bus(cfg, log)
		if err != nil {
			return err
		}
		defer closeBus()

		sink, closeSink, err := bootstrap.DeadLetters(cfg)
		if err != nil {
			return err
		}
		defer closeSink()

		disp := bootstrap.Dispatcher(cfg, topics, sink, log)

		sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(sigCtx)
		defer cancel()

		listener, err := db.Listen(ctx, cfg.Postgres.ConnString(), cfg.Postgres.PingTimeout,
			db.ChannelBlocks, db.ChannelTrigger, db.ChannelOnUpsert)
		if err != nil {
			return err
		}
		defer func() { _ = listener.Close(context.Background()) }()

		// repositories
		changesRepo := repository.NewChangesRepository(dbx, cfg.Relay.ChangesTable)
		rowsRepo := repository.NewRowsRepository(dbx, cfg.Relay.UIDColumn, cfg.Relay.ParentColumn)
		txRepo := repository.NewTransactionsRepository(dbx, cfg.Ledger.TransactionsTable())

		// relays
		trigger := relay.NewTriggerDispatcher(changesRepo, disp, relayConfig(cfg, cfg.Relay.TriggerInterval), log.Named("trigger"))
		upsert := relay.NewUpsertMirror(rowsRepo, disp, cfg.Bus.UpsertTopic, relayConfig(cfg, cfg.Relay.UpsertInterval), log.Named("upsert"))

		confirmer := worker.NewBlockConfirmer(ledger.NewHTTPClient(cfg.Ledger.BaseURL, cfg.Ledger.TimeoutMs), txRepo, log.Named("confirmer"))
		confirmer.Interval = cfg.Ledger.PollInterval
		confirmer.MaxAttempts = cfg.Ledger.MaxAttempts
		confirmer.AlertOnTimeout = cfg.Ledger.AlertOnTimeout

		router := relay.NewRouter(listener, confirmer, trigger, upsert, log.Named("router"))

		deps := httpSrv.Deps{
			Status:     &liveStatus{trigger: trigger, upsert: upsert, confirmer: confirmer, topics: topics, disp: disp},
			Emitter:    notify.New(dbx, changesRepo),
			AdminToken: cfg.HTTP.AdminToken,
			Log:        log.Named("http"),
		}
		if sink != nil {
			// replays that fail are requeued by the replayer, not dead-lettered twice
			replayDisp := bootstrap.Dispatcher(cfg, topics, nil, log)
			deps.DeadLetters = deadletter.NewReplayer(sink, replayDisp, log.Named("replay"))
		}
		server := httpSrv.NewServer(deps)

		httpErr := make(chan error, 1)
		go func() { httpErr <- server.Start(cfg.HTTP.Addr) }()

		var relays sync.WaitGroup
		relays.Add(2)
		go func() { defer relays.Done(); trigger.Run(ctx) }()
		go func() { defer relays.Done(); upsert.Run(ctx) }()

		routerErr := make(chan error, 1)
		go func() { routerErr <- router.Run(ctx) }()

		log.Info("dbrelay started",
			zap.String("bus", cfg.Bus.Driver),
			zap.Strings("channels", listener.Channels()),
			zap.String("transactions_table", cfg.Ledger.TransactionsTable()))

		var (
			runErr       error
			routerExited bool
		)
		select {
		case <-ctx.Done():
			log.Info("signal received, shutting down")
		case err := <-routerErr:
			// a lost LISTEN connection is fatal; the supervisor restarts us
			runErr, routerExited = err, true
			log.Error("listener failed", zap.Error(err))
		case err := <-httpErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				runErr = fmt.Errorf("http server: %w", err)
				log.Error("http server exited", zap.Error(err))
			}
		}

		cancel()
		if !routerExited {
			<-routerErr
		}
		relays.Wait()
		confirmer.Wait()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = server.Shutdown(shutdownCtx)

		return runErr
	},
}

func relayConfig(cfg config.Config, interval time.Duration) relay.Config {
	return relay.Config{
		Interval:        interval,
		Concurrency:     cfg.Relay.PublishConcurrency,
		QueueCapacity:   cfg.Relay.QueueCapacity,
		ShutdownTimeout: cfg.Relay.ShutdownTimeout,
	}
}

type liveStatus struct {
	trigger   *relay.TriggerDispatcher
	upsert    *relay.UpsertMirror
	confirmer *worker.BlockConfirmer
	topics    *bus.Registry
	disp      *dispatcher.Dispatcher
}

func (s *liveStatus) Status() httpSrv.Status {
	return httpSrv.Status{
		TriggerPending:        s.trigger.Pending(),
		UpsertPending:         s.upsert.Pending(),
		ConfirmationsInFlight: s.confirmer.InFlight(),
		Topics:                s.topics.Names(),
		Breakers:              s.disp.BreakerStates(),
	}
}
