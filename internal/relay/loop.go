package relay

import (
	"context"
	"time"
)

// runEvery calls flush, waits every, and repeats; the wait starts after flush
// returns so two flushes never overlap. When ctx ends one last flush runs on a
// detached context bounded by grace.
func runEvery(ctx context.Context, every, grace time.Duration, flush func(context.Context)) {
	t := time.NewTimer(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
			flush(final)
			cancel()
			return
		case <-t.C:
			flush(ctx)
			t.Reset(every)
		}
	}
}
