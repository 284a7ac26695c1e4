package relay

import (
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestQueueDrainEmpties(t *testing.T) {
	c := qt.New(t)

	q := NewQueue[int](0)
	for i := 0; i < 3; i++ {
		c.Assert(q.Push(i), qt.IsNil)
	}
	c.Check(q.Drain(), qt.DeepEquals, []int{0, 1, 2})
	c.Check(q.Len(), qt.Equals, 0)
	c.Check(q.Drain(), qt.HasLen, 0)

	c.Assert(q.Push(9), qt.IsNil)
	c.Check(q.Drain(), qt.DeepEquals, []int{9})
}

func TestQueueCapacity(t *testing.T) {
	c := qt.New(t)

	q := NewQueue[string](2)
	c.Assert(q.Push("a"), qt.IsNil)
	c.Assert(q.Push("b"), qt.IsNil)
	c.Check(q.Push("c"), qt.ErrorIs, ErrQueueFull)

	q.Drain()
	c.Check(q.Push("c"), qt.IsNil)
}

func TestQueueConcurrentPushDrainLosesNothing(t *testing.T) {
	c := qt.New(t)

	q := NewQueue[int](0)
	const writers, each = 8, 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_ = q.Push(i)
			}
		}()
	}

	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		total += len(q.Drain())
		select {
		case <-done:
			total += len(q.Drain())
			c.Check(total, qt.Equals, writers*each)
			return
		default:
		}
	}
}
