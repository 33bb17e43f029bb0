package taskloop

import (
	"math/rand"
	"testing"
	"time"
)

func TestStreamingQuantileEmpty(t *testing.T) {
	s := newStreamingQuantile(0.99)
	if got := s.estimate(); got != 0 {
		t.Errorf("estimate with no observations = %v, want 0", got)
	}
}

// TestStreamingQuantileSmallCount verifies exact results before the marker
// phase begins.
func TestStreamingQuantileSmallCount(t *testing.T) {
	s := newStreamingQuantile(0.5)
	s.observe(30 * time.Millisecond)
	s.observe(10 * time.Millisecond)
	s.observe(20 * time.Millisecond)

	if got := s.estimate(); got != 20*time.Millisecond {
		t.Errorf("median of 3 samples = %v, want 20ms", got)
	}
	if s.count != 3 {
		t.Errorf("count = %d, want 3", s.count)
	}
}

func TestStreamingQuantileExactlyFive(t *testing.T) {
	s := newStreamingQuantile(0.5)
	for i := 1; i <= 5; i++ {
		s.observe(time.Duration(i) * time.Millisecond)
	}
	if got := s.estimate(); got != 3*time.Millisecond {
		t.Errorf("median of 1..5ms = %v, want 3ms", got)
	}
}

func TestStreamingQuantileConstantStream(t *testing.T) {
	s := newStreamingQuantile(0.99)
	for i := 0; i < 105; i++ {
		s.observe(4 * time.Millisecond)
	}
	if got := s.estimate(); got != 4*time.Millisecond {
		t.Errorf("estimate of a constant stream = %v, want 4ms", got)
	}
	if s.count != 105 {
		t.Errorf("count = %d, want 105", s.count)
	}
}

// TestStreamingQuantileUniform feeds a shuffled uniform distribution and
// checks the estimates land near the true quantiles.
func TestStreamingQuantileUniform(t *testing.T) {
	p99 := newStreamingQuantile(0.99)
	p50 := newStreamingQuantile(0.5)

	r := rand.New(rand.NewSource(7))
	for _, v := range r.Perm(10000) {
		d := time.Duration(v+1) * time.Millisecond
		p99.observe(d)
		p50.observe(d)
	}

	if got := p99.estimate(); got < 9000*time.Millisecond || got > 10000*time.Millisecond {
		t.Errorf("P99 estimate = %v, want within [9000ms, 10000ms]", got)
	}
	if got := p50.estimate(); got < 4500*time.Millisecond || got > 5500*time.Millisecond {
		t.Errorf("P50 estimate = %v, want within [4500ms, 5500ms]", got)
	}
}

func TestStreamingQuantileExtremes(t *testing.T) {
	s := newStreamingQuantile(0.9)
	for i := 1; i <= 5; i++ {
		s.observe(time.Duration(i) * time.Millisecond)
	}
	// New minimum and maximum after initialization extend the outer markers.
	s.observe(500 * time.Microsecond)
	s.observe(10 * time.Millisecond)

	got := s.estimate()
	if got < 500*time.Microsecond || got > 10*time.Millisecond {
		t.Errorf("estimate = %v, want within the observed range", got)
	}
}

func TestStreamingQuantileClampsTarget(t *testing.T) {
	if s := newStreamingQuantile(1.5); s.p != 1.0 {
		t.Errorf("p = %v, want clamped to 1.0", s.p)
	}
	if s := newStreamingQuantile(-0.5); s.p != 0.0 {
		t.Errorf("p = %v, want clamped to 0.0", s.p)
	}
}
