package extsort

import (
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/tablesort/pkg/table"
)

// MergeIterator merges pre-sorted sources into one sorted, stable stream.
//
// Rows that compare equal are emitted in source index order. Each source is
// closed as soon as it is exhausted: sources that are empty at construction
// are closed by NewMergeIterator in index order, others inside the Next call
// that drains them. Close closes the remaining sources exactly once.
//
// A MergeIterator is not safe for concurrent use.
type MergeIterator struct {
	sources []RowIterator // nil once closed
	heap    *mergeHeap
	err     error
	closed  bool
}

// mergeItem is the current head row of one source.
type mergeItem struct {
	row *table.Row
	src int
}

// mergeHeap is a min-heap ordered by (row, source index).
type mergeHeap struct {
	items   []mergeItem
	compare CompareFunc
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if c := h.compare(a.row, b.row); c != 0 {
		return c < 0
	}
	return a.src < b.src
}

func (h *mergeHeap) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

// NewMergeIterator reads the first row of every source and builds the heap.
// nil sources are treated as exhausted. On error every source is closed.
//
// The iterator owns sources from this call on, including on error.
func NewMergeIterator(compare CompareFunc, sources []RowIterator) (*MergeIterator, error) {
	m := &MergeIterator{
		sources: append([]RowIterator(nil), sources...),
		heap: &mergeHeap{
			items:   make([]mergeItem, 0, len(sources)),
			compare: compare,
		},
	}

	for i, src := range m.sources {
		if src == nil {
			continue
		}
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			if err := m.closeSource(i); err != nil {
				m.Close()
				return nil, err
			}
			continue
		}
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("initial read from source %d: %w", i, err)
		}
		m.heap.items = append(m.heap.items, mergeItem{row: row, src: i})
	}

	heapInit(m.heap)
	return m, nil
}

// HasNext reports whether Next has a row to return. It has no side effects.
func (m *MergeIterator) HasNext() bool {
	return !m.closed && (m.err != nil || m.heap.Len() > 0)
}

// Next returns the smallest head row and advances its source. It returns
// ErrExhausted when no source has rows left.
func (m *MergeIterator) Next() (*table.Row, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.closed || m.heap.Len() == 0 {
		return nil, ErrExhausted
	}

	top := m.heap.items[0]
	next, err := m.sources[top.src].Next()
	switch {
	case err == nil:
		m.heap.items[0].row = next
		heapDown(m.heap, 0, m.heap.Len())
	case errors.Is(err, io.EOF):
		heapPop(m.heap)
		if err := m.closeSource(top.src); err != nil {
			m.err = err
			return nil, err
		}
	default:
		m.err = fmt.Errorf("advance source %d: %w", top.src, err)
		return nil, m.err
	}
	return top.row, nil
}

// Active returns the number of sources not yet exhausted.
func (m *MergeIterator) Active() int {
	return m.heap.Len()
}

// Close closes every source that is still open, in index order, and returns
// the first close error. It is idempotent.
func (m *MergeIterator) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.heap.items = nil

	var firstErr error
	for i := range m.sources {
		if err := m.closeSource(i); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MergeIterator) closeSource(i int) error {
	src := m.sources[i]
	if src == nil {
		return nil
	}
	m.sources[i] = nil
	if err := src.Close(); err != nil {
		return fmt.Errorf("close source %d: %w", i, err)
	}
	return nil
}

// Heap operations on mergeHeap, without container/heap.

func heapInit(h *mergeHeap) {
	n := h.Len()
	for i := n/2 - 1; i >= 0; i-- {
		heapDown(h, i, n)
	}
}

func heapPop(h *mergeHeap) mergeItem {
	n := h.Len() - 1
	h.swap(0, n)
	heapDown(h, 0, n)
	item := h.items[n]
	h.items[n] = mergeItem{}
	h.items = h.items[:n]
	return item
}

func heapDown(h *mergeHeap, i0, n int) {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.less(j2, j1) {
			j = j2
		}
		if !h.less(j, i) {
			break
		}
		h.swap(i, j)
		i = j
	}
}
