package fabric

import (
	"context"
	"sync"
	"time"
)

// tokenBucket paces calls to one upstream. Tokens accumulate continuously
// with elapsed wall-clock time; acquisition blocks until a token is
// available. Waiters are served FIFO.
type tokenBucket struct {
	mu       sync.Mutex
	qps      float64
	capacity float64
	tokens   float64
	last     time.Time
	waiters  []chan struct{}
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func newTokenBucket(qps float64) *tokenBucket {
	if qps <= 0 {
		qps = 1
	}
	capacity := qps * 10
	if capacity < 1 {
		capacity = 1
	}
	return &tokenBucket{
		qps:      qps,
		capacity: capacity,
		tokens:   capacity,
		last:     time.Now(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *tokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.qps
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
}

// Acquire blocks cooperatively until one token is available, then takes it.
func (b *tokenBucket) Acquire(ctx context.Context) error {
	// Join the FIFO queue; only the head may take a token.
	me := make(chan struct{})
	b.mu.Lock()
	b.waiters = append(b.waiters, me)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		for i, w := range b.waiters {
			if w == me {
				b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
	}()

	for {
		b.mu.Lock()
		b.refillLocked()
		atHead := len(b.waiters) > 0 && b.waiters[0] == me
		if atHead && b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		var wait time.Duration
		if atHead {
			deficit := 1 - b.tokens
			wait = time.Duration(deficit / b.qps * float64(time.Second))
		} else {
			wait = 10 * time.Millisecond
		}
		b.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
