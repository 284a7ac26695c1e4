package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/dbrelay/internal/bootstrap"
	"github.com/jmehdipour/dbrelay/internal/config"
	"github.com/jmehdipour/dbrelay/internal/ledger"
	"github.com/jmehdipour/dbrelay/internal/logger"
	"github.com/jmehdipour/dbrelay/internal/repository"
	"github.com/jmehdipour/dbrelay/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var confirmAttempts int

var confirmCmd = &cobra.Command{
	Use:   "confirm <blockId>...",
	Short: "Confirm blocks synchronously (backfill for blocks missed or timed out)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)
		defer func() { _ = log.Sync() }()

		// 2) DB connection (Postgres)
		dbx, err := bootstrap.Postgres(cfg)
		if err != nil {
			return err
		}
		defer dbx.Close()

		// 3) confirmer
		c := worker.NewBlockConfirmer(
			ledger.NewHTTPClient(cfg.Ledger.BaseURL, cfg.Ledger.TimeoutMs),
			repository.NewTransactionsRepository(dbx, cfg.Ledger.TransactionsTable()),
			log.Named("confirmer"),
		)
		c.Interval = cfg.Ledger.PollInterval
		c.MaxAttempts = cfg.Ledger.MaxAttempts
		if confirmAttempts > 0 {
			c.MaxAttempts = confirmAttempts
		}
		c.AlertOnTimeout = cfg.Ledger.AlertOnTimeout

		// 4) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		failed := 0
		for _, id := range args {
			outcome, err := c.Confirm(ctx, id)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, outcome)
			if err != nil {
				failed++
				log.Error("confirm failed", zap.String("block_id", id), zap.Error(err))
			}
			if ctx.Err() != nil {
				break
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d blocks failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	confirmCmd.Flags().IntVar(&confirmAttempts, "attempts", 0, "override ledger.max_attempts")
}
