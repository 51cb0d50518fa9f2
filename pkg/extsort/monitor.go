package extsort

import (
	"context"
	"fmt"
)

// Monitor is the execution context of a sort: it reports progress and
// signals cancellation at the sorter's yield points.
type Monitor interface {
	// CheckCanceled returns an error wrapping ErrCanceled once the caller
	// has asked to abort.
	CheckCanceled() error
	// SetProgress reports overall progress in [0, 1].
	SetProgress(fraction float64, message string)
}

type contextMonitor struct {
	ctx      context.Context
	progress ProgressFunc
}

// NewMonitor returns a Monitor that is canceled with ctx and forwards
// progress to fn. fn may be nil.
func NewMonitor(ctx context.Context, fn ProgressFunc) Monitor {
	if ctx == nil {
		ctx = context.Background()
	}
	return &contextMonitor{ctx: ctx, progress: fn}
}

func (m *contextMonitor) CheckCanceled() error {
	if err := m.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	return nil
}

func (m *contextMonitor) SetProgress(fraction float64, message string) {
	if m.progress != nil {
		m.progress(clampFraction(fraction), message)
	}
}

type subMonitor struct {
	parent Monitor
	offset float64
	scale  float64
}

// SubProgress returns a Monitor that maps its own [0, 1] progress onto
// [offset, offset+scale] of parent. Cancellation is delegated unchanged.
func SubProgress(parent Monitor, offset, scale float64) Monitor {
	return &subMonitor{parent: parent, offset: offset, scale: scale}
}

func (m *subMonitor) CheckCanceled() error {
	return m.parent.CheckCanceled()
}

func (m *subMonitor) SetProgress(fraction float64, message string) {
	m.parent.SetProgress(m.offset+clampFraction(fraction)*m.scale, message)
}

func clampFraction(f float64) float64 {
	switch {
	case f < 0 || f != f:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
