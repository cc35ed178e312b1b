package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress for long-running operations.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
	Error(err error)
}

const (
	barWidth = 30

	// redrawEvery throttles redraws; large exports update per entry.
	redrawEvery = 100 * time.Millisecond
)

// BarProgress draws a single-line bar on a terminal, overwriting it in
// place with a carriage return.
type BarProgress struct {
	w     io.Writer
	label string
	now   func() time.Time

	mu       sync.Mutex
	total    int64
	done     int64
	started  time.Time
	lastDraw time.Time
}

// NewProgressReporter returns a bar that counts audit entries on w
// (os.Stderr when nil).
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &BarProgress{w: w, label: "entries", now: time.Now}
}

func (p *BarProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total, p.done = total, 0
	p.started = p.now()
	p.draw(true)
}

func (p *BarProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = min(current, p.total)
	p.draw(false)
}

func (p *BarProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = p.total
	p.draw(true)
	if p.total > 0 {
		fmt.Fprintln(p.w)
	}
}

func (p *BarProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\n✗ Error: %v\n", err)
}

func (p *BarProgress) draw(force bool) {
	if p.total <= 0 {
		return
	}
	now := p.now()
	if !force && now.Sub(p.lastDraw) < redrawEvery {
		return
	}
	p.lastDraw = now

	filled := int(p.done * barWidth / p.total)
	var rate float64
	if secs := now.Sub(p.started).Seconds(); secs > 0 {
		rate = float64(p.done) / secs
	}
	fmt.Fprintf(p.w, "\r[%s%s] %d/%d %s (%.0f%%, %.0f/s)",
		strings.Repeat("=", filled), strings.Repeat(" ", barWidth-filled),
		p.done, p.total, p.label, float64(p.done)*100/float64(p.total), rate)
}
