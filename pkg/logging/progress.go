package logging

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// DefaultProgressInterval is the minimum time between progress events.
const DefaultProgressInterval = 2 * time.Second

// ProgressLogger turns fractional progress updates into throttled log
// events with an ETA. It is safe for concurrent use.
type ProgressLogger struct {
	log      zerolog.Logger
	phase    string
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	start    time.Time
	last     time.Time
	fraction float64
	message  string
}

// NewProgressLogger returns a logger for phase. An interval of zero uses
// DefaultProgressInterval.
func NewProgressLogger(log zerolog.Logger, phase string, interval time.Duration) *ProgressLogger {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	p := &ProgressLogger{log: log, phase: phase, interval: interval, now: time.Now}
	p.start = p.now()
	return p
}

// Update records progress in [0, 1]. An event is logged when the interval
// has passed since the last one or when progress reaches 1.
func (p *ProgressLogger) Update(fraction float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.fraction, p.message = fraction, message
	if fraction < 1 && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.emit(now)
}

// Fraction returns the last reported progress.
func (p *ProgressLogger) Fraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fraction
}

// ETA extrapolates the remaining time from the elapsed time and progress.
// It is zero before any progress has been made.
func (p *ProgressLogger) ETA() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eta(p.now())
}

func (p *ProgressLogger) eta(now time.Time) time.Duration {
	if p.fraction <= 0 || p.fraction >= 1 {
		return 0
	}
	elapsed := now.Sub(p.start)
	return time.Duration(float64(elapsed) * (1 - p.fraction) / p.fraction)
}

func (p *ProgressLogger) emit(now time.Time) {
	elapsed := now.Sub(p.start)
	e := p.log.Info().
		Str("event", "progress").
		Str("phase", p.phase).
		Float64("progress_pct", p.fraction*100).
		Int64("elapsed_ms", elapsed.Milliseconds())
	if eta := p.eta(now); eta > 0 {
		e = e.Int64("eta_ms", eta.Milliseconds())
		if IsPrettyMode() {
			e = e.Str("eta_h", humanize.RelTime(now, now.Add(eta), "", "remaining"))
		}
	}
	e.Msg(p.message)
}

// SortSummary holds the figures logged when a sort finishes.
type SortSummary struct {
	Rows          int64
	Chunks        int
	SpilledChunks int
	MergeLevels   int
	InMemory      bool
	BytesRead     int64
	Elapsed       time.Duration
}

// LogSortComplete logs a completion event for summary.
func LogSortComplete(log zerolog.Logger, s SortSummary) {
	e := log.Info().
		Str("event", "phase_completed").
		Str("phase", "sort").
		Int64("rows_count", s.Rows).
		Int("chunks_count", s.Chunks).
		Int("spilled_count", s.SpilledChunks).
		Int("merge_levels", s.MergeLevels).
		Bool("in_memory", s.InMemory).
		Int64("duration_ms", s.Elapsed.Milliseconds())
	if s.BytesRead > 0 {
		e = e.Int64("bytes_read", s.BytesRead)
	}
	if IsPrettyMode() {
		e = e.Str("rows_h", humanize.Comma(s.Rows)).
			Str("duration_h", s.Elapsed.Round(time.Millisecond).String())
		if s.BytesRead > 0 {
			e = e.Str("bytes_read_h", humanize.IBytes(uint64(s.BytesRead)))
		}
		if secs := s.Elapsed.Seconds(); secs > 0 {
			e = e.Str("rows_per_sec_h", humanize.Comma(int64(float64(s.Rows)/secs)))
		}
	}
	e.Msg("sort complete")
}
