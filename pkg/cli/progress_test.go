package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeClock advances by step on every call.
func fakeClock(step time.Duration) func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func TestBarProgress(t *testing.T) {
	tests := []struct {
		name     string
		total    int64
		updates  []int64
		wantSub  []string
		wantNone bool
	}{
		{
			name:    "half then finish",
			total:   10,
			updates: []int64{5},
			wantSub: []string{"5/10 entries (50%", "10/10 entries (100%", "/s)"},
		},
		{
			name:    "overshoot is clamped",
			total:   4,
			updates: []int64{9},
			wantSub: []string{"4/4 entries"},
		},
		{
			name:     "zero total renders nothing",
			total:    0,
			updates:  []int64{0},
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			p := NewProgressReporter(buf).(*BarProgress)
			p.now = fakeClock(time.Second)
			p.Start(tt.total)
			for _, u := range tt.updates {
				p.Update(u)
			}
			p.Finish()

			out := buf.String()
			if tt.wantNone {
				if out != "" {
					t.Errorf("output = %q, want empty", out)
				}
				return
			}
			for _, s := range tt.wantSub {
				if !strings.Contains(out, s) {
					t.Errorf("output %q missing %q", out, s)
				}
			}
		})
	}
}

func TestBarProgress_Throttled(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgressReporter(buf).(*BarProgress)
	p.now = fakeClock(time.Millisecond)

	p.Start(1000)
	for i := int64(1); i <= 50; i++ {
		p.Update(i)
	}
	if n := strings.Count(buf.String(), "\r"); n != 1 {
		t.Errorf("redraws = %d, want 1 (start only)", n)
	}
	p.Finish()
	if !strings.Contains(buf.String(), "1000/1000") {
		t.Errorf("Finish did not draw the final bar: %q", buf.String())
	}
}

func TestBarProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgressReporter(buf)
	p.Start(3)
	p.Error(errors.New("sink closed"))

	if !strings.Contains(buf.String(), "Error: sink closed") {
		t.Errorf("output = %q", buf.String())
	}
}
