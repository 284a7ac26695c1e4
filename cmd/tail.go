package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/dbrelay/internal/config"
	"github.com/jmehdipour/dbrelay/internal/kafka"
	"github.com/jmehdipour/dbrelay/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	tailFromBeginning bool
	tailCommit        bool
)

var tailCmd = &cobra.Command{
	Use:   "tail <topic>",
	Short: "Print messages relayed to a Kafka topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Bus.Driver != "kafka" {
			return fmt.Errorf("tail needs the kafka bus driver, configured %q", cfg.Bus.Driver)
		}
		log := logger.Init(cfg.Log.Level)

		topic := cfg.Bus.TopicPrefix + args[0]
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          topic,
			GroupID:        cfg.Kafka.GroupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
			FromBeginning:  tailFromBeginning,
		})
		defer consumer.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		enc := json.NewEncoder(cmd.OutOrStdout())
		for {
			m, err := consumer.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("fetch %s: %w", topic, err)
			}

			line := map[string]any{
				"topic":     m.Topic,
				"partition": m.Partition,
				"offset":    m.Offset,
				"key":       string(m.Key),
				"headers":   kafka.Headers(m),
				"time":      m.Time,
			}
			if json.Valid(m.Value) {
				line["body"] = json.RawMessage(m.Value)
			} else {
				line["body"] = string(m.Value)
			}
			if err := enc.Encode(line); err != nil {
				return err
			}

			if tailCommit {
				if err := consumer.Commit(ctx, m); err != nil {
					log.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}
	},
}

func init() {
	tailCmd.Flags().BoolVar(&tailFromBeginning, "from-beginning", false, "start at the oldest offset when the group has none committed")
	tailCmd.Flags().BoolVar(&tailCommit, "commit", false, "commit offsets for the configured group")
}
