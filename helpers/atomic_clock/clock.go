// Package atomic_clock keeps wall clock time in atomic int64 nanoseconds.
// Zero value means "never". Time zone is not preserved.
package atomic_clock

import (
	"sync/atomic"
	"time"
)

type Clock struct{ v int64 }

func New(v int64) *Clock { return &Clock{v: v} }
func Now() *Clock        { return New(Source()) }
func Source() int64      { return time.Now().UnixNano() }

func (c *Clock) IsZero() bool    { return c.UnixNano() == 0 }
func (c *Clock) UnixNano() int64 { return atomic.LoadInt64(&c.v) }
func (c *Clock) Unix() int64     { return c.UnixNano() / int64(time.Second) }
func (c *Clock) SetNow()         { atomic.StoreInt64(&c.v, Source()) }
func (c *Clock) SetTime(t time.Time) {
	atomic.StoreInt64(&c.v, t.UnixNano())
}

// Time returns zero time.Time for zero clock.
func (c *Clock) Time() time.Time {
	v := c.UnixNano()
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

func Since(begin *Clock) time.Duration { return time.Duration(Source() - begin.UnixNano()) }
