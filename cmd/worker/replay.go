package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/dbrelay/internal/bootstrap"
	"github.com/jmehdipour/dbrelay/internal/config"
	"github.com/jmehdipour/dbrelay/internal/deadletter"
	"github.com/jmehdipour/dbrelay/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var replayLimit int

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Republish dead-lettered messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if !cfg.DeadLetter.Enabled {
			return fmt.Errorf("dead_letter.enabled is false, nothing to replay")
		}
		log := logger.Init(cfg.Log.Level)
		defer func() { _ = log.Sync() }()

		sink, closeSink, err := bootstrap.DeadLetters(cfg)
		if err != nil {
			return err
		}
		defer closeSink()

		topics, closeBus, err := bootstrap.Bus(cfg, log)
		if err != nil {
			return err
		}
		defer closeBus()

		// replayed letters that fail again go back to the list, not into a
		// second dead letter
		disp := bootstrap.Dispatcher(cfg, topics, nil, log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := deadletter.Replay(ctx, sink, disp, replayLimit, log.Named("replay"))
		log.Info("replay finished", zap.Int("replayed", res.Replayed), zap.Int("failed", res.Failed))
		return err
	},
}

func init() {
	replayCmd.Flags().IntVar(&replayLimit, "limit", 0, "max letters to replay (0 = all)")
}
