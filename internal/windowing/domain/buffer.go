package windowing

import (
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 16

// Interval is a buffered time range with an arbitrary payload.
type Interval[T any] struct {
	Start   uint64
	End     uint64
	Payload T
}

// Overlaps reports whether the interval intersects [begin, end], bounds inclusive.
func (i Interval[T]) Overlaps(begin, end uint64) bool {
	return i.Start <= end && i.End >= begin
}

type entry[T any] struct {
	interval Interval[T]
	seq      uint64
}

func (e entry[T]) span() uint64 {
	if e.interval.End > e.interval.Start {
		return e.interval.End - e.interval.Start
	}
	return 0
}

func lessEntry[T any](a, b entry[T]) bool {
	if a.interval.Start != b.interval.Start {
		return a.interval.Start < b.interval.Start
	}
	return a.seq < b.seq
}

// spanCount is the number of stored entries with a given span.
type spanCount struct {
	span uint64
	n    int
}

func lessSpan(a, b spanCount) bool {
	return a.span < b.span
}

// Buffer is a capacity-bounded store of intervals ordered by start time.
// Entries sharing a start time are ordered by insertion, so the older one is
// evicted first.
type Buffer[T any] struct {
	mu          sync.RWMutex
	tree        *btree.BTreeG[entry[T]]
	spans       *btree.BTreeG[spanCount]
	capacity    int
	nextSeq     uint64
	rejectDupes bool
}

// Option configures a Buffer.
type Option func(*options)

type options struct {
	rejectDupes bool
}

// WithRejectDuplicateStarts makes Add refuse an interval whose start time is
// already stored, matching a set keyed solely on start time.
func WithRejectDuplicateStarts() Option {
	return func(o *options) {
		o.rejectDupes = true
	}
}

// NewBuffer constructs a buffer holding at most capacity intervals.
func NewBuffer[T any](capacity int, opts ...Option) (*Buffer[T], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Buffer[T]{
		tree:        btree.NewG[entry[T]](btreeDegree, lessEntry[T]),
		spans:       btree.NewG[spanCount](btreeDegree, lessSpan),
		capacity:    capacity,
		rejectDupes: o.rejectDupes,
	}, nil
}

// Add inserts an interval, evicting the smallest start times while the buffer
// is over capacity. It returns false only when the insert was rejected.
func (b *Buffer[T]) Add(interval Interval[T]) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rejectDupes && b.hasStartLocked(interval.Start) {
		return false
	}

	e := entry[T]{interval: interval, seq: b.nextSeq}
	b.tree.ReplaceOrInsert(e)
	b.nextSeq++
	b.addSpanLocked(e.span())

	for b.tree.Len() > b.capacity {
		if evicted, ok := b.tree.DeleteMin(); ok {
			b.removeSpanLocked(evicted.span())
		}
	}
	return true
}

func (b *Buffer[T]) addSpanLocked(span uint64) {
	sc, _ := b.spans.Get(spanCount{span: span})
	sc.span = span
	sc.n++
	b.spans.ReplaceOrInsert(sc)
}

func (b *Buffer[T]) removeSpanLocked(span uint64) {
	sc, ok := b.spans.Get(spanCount{span: span})
	if !ok {
		return
	}
	if sc.n <= 1 {
		b.spans.Delete(sc)
		return
	}
	sc.n--
	b.spans.ReplaceOrInsert(sc)
}

// maxSpanLocked is the longest span among stored entries.
func (b *Buffer[T]) maxSpanLocked() uint64 {
	if sc, ok := b.spans.Max(); ok {
		return sc.span
	}
	return 0
}

func (b *Buffer[T]) hasStartLocked(start uint64) bool {
	found := false
	b.tree.AscendGreaterOrEqual(entry[T]{interval: Interval[T]{Start: start}}, func(item entry[T]) bool {
		found = item.interval.Start == start
		return false
	})
	return found
}

// Query returns every stored interval with Start <= end and End >= begin, in
// ascending start order.
func (b *Buffer[T]) Query(begin, end uint64) []Interval[T] {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// Nothing starting before begin-maxSpan can reach begin.
	var from uint64
	if maxSpan := b.maxSpanLocked(); begin > maxSpan {
		from = begin - maxSpan
	}

	var out []Interval[T]
	b.tree.AscendGreaterOrEqual(entry[T]{interval: Interval[T]{Start: from}}, func(item entry[T]) bool {
		if item.interval.Start > end {
			return false
		}
		if item.interval.End >= begin {
			out = append(out, item.interval)
		}
		return true
	})
	return out
}

// Len returns the number of stored intervals.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree.Len()
}

// Capacity returns the configured capacity.
func (b *Buffer[T]) Capacity() int {
	return b.capacity
}

// Clear drops all stored intervals.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tree.Clear(false)
	b.spans.Clear(false)
}
