package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmehdipour/dbrelay/internal/ledger"
	"github.com/jmehdipour/dbrelay/internal/metrics"
	"github.com/jmehdipour/dbrelay/internal/model"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeConfirmed   Outcome = "confirmed"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeNotIncluded Outcome = "not_included"
	OutcomeTimedOut    Outcome = "timed_out"
	OutcomeStopped     Outcome = "stopped"
	OutcomeFailed      Outcome = "failed"
)

var errPending = errors.New("no ledger inclusion state yet")

// MilestoneWriter is satisfied by repository.TransactionsRepository.
type MilestoneWriter interface {
	InsertMilestone(ctx context.Context, tx model.MilestoneTransaction) (inserted bool, err error)
}

// BlockConfirmer waits for announced blocks to reach a ledger verdict and
// records included ones as milestone transactions.
type BlockConfirmer struct {
	// Dependencies
	Ledger       ledger.Client
	Transactions MilestoneWriter
	Clock        retry.Clock

	// Behavior
	Interval       time.Duration // delay between metadata polls
	MaxAttempts    int           // metadata polls before giving up
	AlertOnTimeout bool          // log an exhausted budget at error level

	log      *zap.Logger
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewBlockConfirmer builds a confirmer polling every 500ms for up to 1200
// attempts unless overridden.
func NewBlockConfirmer(l ledger.Client, txs MilestoneWriter, log *zap.Logger) *BlockConfirmer {
	if log == nil {
		log = zap.NewNop()
	}
	return &BlockConfirmer{
		Ledger:       l,
		Transactions: txs,
		Clock:        clock.WallClock,
		Interval:     500 * time.Millisecond,
		MaxAttempts:  1200,
		log:          log,
	}
}

// OnBlockNotification starts a confirmation task and returns immediately.
func (c *BlockConfirmer) OnBlockNotification(ctx context.Context, blockID string) {
	if blockID == "" {
		return
	}
	c.wg.Add(1)
	c.inFlight.Add(1)
	metrics.ConfirmationsInFlight.Inc()

	go func() {
		defer c.wg.Done()
		defer func() {
			c.inFlight.Add(-1)
			metrics.ConfirmationsInFlight.Dec()
		}()
		_, _ = c.Confirm(ctx, blockID)
	}()
}

// Wait blocks until every task started by OnBlockNotification has returned.
func (c *BlockConfirmer) Wait() { c.wg.Wait() }

func (c *BlockConfirmer) InFlight() int64 { return c.inFlight.Load() }

// Confirm polls the ledger until blockID has an inclusion state and, when it
// was included, inserts its milestone transaction. Every outcome is logged;
// the error is non-nil only for OutcomeFailed.
func (c *BlockConfirmer) Confirm(ctx context.Context, blockID string) (Outcome, error) {
	log := c.log.With(zap.String("block_id", blockID))

	md, outcome, err := c.awaitVerdict(ctx, blockID)
	if outcome != "" {
		return c.finish(log, outcome, err)
	}

	if !md.Included() {
		log.Info("block not included", zap.String("state", md.LedgerInclusionState))
		return c.finish(log, OutcomeNotIncluded, nil)
	}

	block, err := c.Ledger.GetBlock(ctx, blockID)
	if err != nil {
		return c.finish(log, OutcomeFailed, fmt.Errorf("get block %s: %w", blockID, err))
	}

	payload := []byte(block.Payload)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	tx := model.MilestoneTransaction{
		UID:       blockID,
		BlockID:   blockID,
		ParentID:  strconv.FormatInt(md.ReferencedByMilestoneIndex, 10),
		Milestone: md.ReferencedByMilestoneIndex,
		CreatedOn: c.Clock.Now().UTC(),
		Payload:   payload,
		Processed: false,
	}

	inserted, err := c.Transactions.InsertMilestone(ctx, tx)
	if err != nil {
		return c.finish(log, OutcomeFailed, err)
	}
	if !inserted {
		log.Info("milestone transaction already recorded", zap.Int64("milestone", tx.Milestone))
		return c.finish(log, OutcomeDuplicate, nil)
	}

	log.Info("milestone transaction recorded", zap.Int64("milestone", tx.Milestone))
	return c.finish(log, OutcomeConfirmed, nil)
}

// awaitVerdict returns a non-empty outcome when polling ended without one.
func (c *BlockConfirmer) awaitVerdict(ctx context.Context, blockID string) (model.BlockMetadata, Outcome, error) {
	var md model.BlockMetadata

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			m, err := c.Ledger.GetBlockMetadata(ctx, blockID)
			if err != nil {
				return err
			}
			if !m.Confirmed() {
				return errPending
			}
			md = m
			return nil
		},
		IsFatalError: func(error) bool { return ctx.Err() != nil },
		NotifyFunc: func(err error, attempt int) {
			if !errors.Is(err, errPending) {
				c.log.Debug("block metadata poll failed",
					zap.String("block_id", blockID), zap.Int("attempt", attempt), zap.Error(err))
			}
		},
		Attempts: c.MaxAttempts,
		Delay:    c.Interval,
		Clock:    c.Clock,
		Stop:     ctx.Done(),
	})

	switch {
	case err == nil:
		return md, "", nil
	case ctx.Err() != nil || retry.IsRetryStopped(err):
		return md, OutcomeStopped, nil
	case retry.IsAttemptsExceeded(err):
		return md, OutcomeTimedOut, nil
	default:
		return md, OutcomeFailed, err
	}
}

func (c *BlockConfirmer) finish(log *zap.Logger, outcome Outcome, err error) (Outcome, error) {
	metrics.BlockConfirmations.WithLabelValues(string(outcome)).Inc()

	switch outcome {
	case OutcomeTimedOut:
		fields := []zap.Field{zap.Int("attempts", c.MaxAttempts), zap.Duration("interval", c.Interval)}
		if c.AlertOnTimeout {
			log.Error("block never reached a ledger verdict", fields...)
		} else {
			log.Warn("block never reached a ledger verdict", fields...)
		}
	case OutcomeStopped:
		log.Info("block confirmation stopped")
	case OutcomeFailed:
		log.Error("block confirmation failed", zap.Error(err))
	}
	return outcome, err
}
