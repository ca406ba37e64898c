// Package numbering issues document numbers.
//
// Two schemes are in use and downstream lookups depend on both shapes:
//
//	INV-1760522400123   time token, sales invoices and purchase orders
//	DN-20261015-007     day-keyed counter, delivery notes
package numbering

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const DeliveryNoteSeries = "delivery-note"

// TimeToken formats "<PREFIX>-<epoch millis>". Two calls in the same millisecond collide and
// clock skew can move numbers backwards.
type TimeToken struct {
	prefix string
	now    func() time.Time
}

func NewTimeToken(prefix string, now func() time.Time) *TimeToken {
	if now == nil {
		now = time.Now
	}
	return &TimeToken{prefix: prefix, now: now}
}

func (t *TimeToken) Next() string {
	return fmt.Sprintf("%s-%d", t.prefix, t.now().UnixMilli())
}

// CounterStore persists the last issued number of a series. LastDocumentNumber returns ""
// when nothing has been issued yet.
type CounterStore interface {
	LastDocumentNumber(ctx context.Context, series string) (string, error)
	SaveLastDocumentNumber(ctx context.Context, series string, number string) error
}

// AtomicCounterStore runs the whole read-increment-write on the store side. next receives
// the stored last number and returns the one to store.
type AtomicCounterStore interface {
	CounterStore
	UpdateLastDocumentNumber(ctx context.Context, series string, next func(last string) (string, error)) (string, error)
}

type DayCounter struct {
	store  CounterStore
	series string
	prefix string
	now    func() time.Time
	loc    *time.Location
	lock   sync.Locker
	atomic bool
}

type Option func(*DayCounter)

func WithClock(now func() time.Time) Option {
	return func(c *DayCounter) { c.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(c *DayCounter) { c.loc = loc }
}

// WithLocker serializes Next within this process.
func WithLocker(lock sync.Locker) Option {
	return func(c *DayCounter) { c.lock = lock }
}

// WithStoreAtomic delegates the read-increment-write to the store when it implements
// AtomicCounterStore.
func WithStoreAtomic(enabled bool) Option {
	return func(c *DayCounter) { c.atomic = enabled }
}

func NewDayCounter(store CounterStore, series string, prefix string, opts ...Option) *DayCounter {
	c := &DayCounter{
		store:  store,
		series: series,
		prefix: prefix,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Next reads the last number, increments it when it was issued today and resets to 1
// otherwise, then stores the new number before returning it. Without WithLocker or an
// atomic store, concurrent callers on the same day can receive the same number.
func (c *DayCounter) Next(ctx context.Context) (string, error) {
	if c.lock != nil {
		c.lock.Lock()
		defer c.lock.Unlock()
	}

	today := c.now().In(c.loc).Format(dayLayout)

	if atomicStore, ok := c.store.(AtomicCounterStore); ok && c.atomic {
		return atomicStore.UpdateLastDocumentNumber(ctx, c.series, func(last string) (string, error) {
			return c.successor(last, today), nil
		})
	}

	last, err := c.store.LastDocumentNumber(ctx, c.series)
	if err != nil {
		return "", fmt.Errorf("read last %s number: %w", c.series, err)
	}
	next := c.successor(last, today)
	if err := c.store.SaveLastDocumentNumber(ctx, c.series, next); err != nil {
		return "", fmt.Errorf("save %s number %s: %w", c.series, next, err)
	}
	return next, nil
}

func (c *DayCounter) successor(last string, today string) string {
	seq := 1
	if day, lastSeq, ok := Parse(c.prefix, last); ok && day == today {
		seq = lastSeq + 1
	}
	return Format(c.prefix, today, seq)
}

const dayLayout = "20060102"

func Format(prefix string, day string, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", prefix, day, seq)
}

// Parse splits "<PREFIX>-YYYYMMDD-NNN". Numbers that do not match are reported as !ok.
func Parse(prefix string, number string) (day string, seq int, ok bool) {
	rest, found := strings.CutPrefix(number, prefix+"-")
	if !found {
		return "", 0, false
	}
	day, seqPart, found := strings.Cut(rest, "-")
	if !found || len(day) != len(dayLayout) {
		return "", 0, false
	}
	if _, err := time.Parse(dayLayout, day); err != nil {
		return "", 0, false
	}
	seq, err := strconv.Atoi(seqPart)
	if err != nil || seq < 1 {
		return "", 0, false
	}
	return day, seq, true
}
