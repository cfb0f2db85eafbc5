package helpers

import (
	"sync/atomic"
	"time"
)

// Limited exponential backoff for retry delays.
// Failure() multiplies next delay by K up to Max, Reset() returns to Min.
// Safe for concurrent use.
type Backoff struct {
	next int64 // atomic align

	Min time.Duration
	Max time.Duration
	K   float32
	Res time.Duration // delay resolution for nice logs, default=1ms
}

// Use scenario:
// for {
//   ok := op()
//   time.Sleep(backoff.DelayAfter(ok))
// }
// Success gives zero delay.
func (b *Backoff) DelayAfter(success bool) time.Duration {
	if success {
		b.Reset()
		return 0
	}
	return b.Failure()
}

// Failure returns current delay and increases next one.
func (b *Backoff) Failure() time.Duration {
	atomic.CompareAndSwapInt64(&b.next, 0, int64(b.limit(b.Min)))
	for {
		cur := atomic.LoadInt64(&b.next)
		k := b.K
		if k < 1 {
			k = 1
		}
		next := b.limit(time.Duration(float32(cur) * k))
		if atomic.CompareAndSwapInt64(&b.next, cur, int64(next)) {
			return time.Duration(cur)
		}
	}
}

func (b *Backoff) Reset() { atomic.StoreInt64(&b.next, 0) }

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if b.Max != 0 && d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}
