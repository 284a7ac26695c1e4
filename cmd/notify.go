package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jmehdipour/dbrelay/internal/bootstrap"
	"github.com/jmehdipour/dbrelay/internal/config"
	"github.com/jmehdipour/dbrelay/internal/model"
	"github.com/jmehdipour/dbrelay/internal/repository"
	"github.com/jmehdipour/dbrelay/internal/service/notify"
	"github.com/spf13/cobra"
)

// newNotifyCmd raises the notifications the schema triggers would, for manual
// testing and backfills.
func newNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send relay notifications through Postgres",
	}

	var parentID string

	blockCmd := &cobra.Command{
		Use:   "block <blockId>",
		Short: "Announce a block on the blocks channel",
		Args:  cobra.ExactArgs(1),
		RunE: withNotifier(func(ctx context.Context, svc *notify.Service, args []string) error {
			return svc.NotifyBlock(ctx, args[0])
		}),
	}

	triggerCmd := &cobra.Command{
		Use:   "trigger <channel> <uid>",
		Short: "Point the trigger dispatcher at an existing change row",
		Args:  cobra.ExactArgs(2),
		RunE: withNotifier(func(ctx context.Context, svc *notify.Service, args []string) error {
			uid, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid uid %q: %w", args[1], err)
			}
			return svc.NotifyTrigger(ctx, args[0], uid)
		}),
	}

	upsertCmd := &cobra.Command{
		Use:   "upsert <table> <uid>",
		Short: "Ask the upsert mirror to republish a row",
		Args:  cobra.ExactArgs(2),
		RunE: withNotifier(func(ctx context.Context, svc *notify.Service, args []string) error {
			return svc.NotifyUpsert(ctx, model.UpsertNotice{Table: args[0], UID: args[1], ParentID: parentID})
		}),
	}
	upsertCmd.Flags().StringVar(&parentID, "parent", "", "parent id for sub-collection rows")

	emitCmd := &cobra.Command{
		Use:   "emit <channel> <json>",
		Short: "Insert a change row and notify the trigger channel in one transaction",
		Args:  cobra.ExactArgs(2),
		RunE: withNotifier(func(ctx context.Context, svc *notify.Service, args []string) error {
			uid, err := svc.Emit(ctx, args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Println(uid)
			return nil
		}),
	}

	cmd.AddCommand(blockCmd, triggerCmd, upsertCmd, emitCmd)
	return cmd
}

func withNotifier(fn func(ctx context.Context, svc *notify.Service, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		dbx, err := bootstrap.Postgres(cfg)
		if err != nil {
			return err
		}
		defer dbx.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := notify.New(dbx, repository.NewChangesRepository(dbx, cfg.Relay.ChangesTable))
		return fn(ctx, svc, args)
	}
}
