package taskloop

import (
	"time"
)

// streamingQuantile estimates a single quantile of callback latencies
// without storing observations, using the P-Square algorithm. Updates and
// reads are O(1), cheap enough to run on every callback, unlike the
// sort-based window in [LatencyMetrics.Sample].
//
// Reference:
// Jain, R. and Chlamtac, I. (1985). "The P² Algorithm for Dynamic
// Calculation of Quantiles and Histograms Without Storing Observations".
// Communications of the ACM, 28(10), pp. 1076-1085.
//
// Thread Safety: NOT thread-safe. Caller must ensure synchronization.
type streamingQuantile struct {
	// p is the target quantile (0.0 to 1.0)
	p float64

	// q stores the 5 marker heights (values at markers)
	q [5]float64

	// n stores the 5 marker positions (actual positions, 0-indexed)
	n [5]int

	// np stores the 5 desired marker positions (idealized, floats)
	np [5]float64

	// dn stores the increments for desired marker positions
	dn [5]float64

	// count is the total number of observations received
	count int

	// initBuffer stores the first 5 observations before the algorithm starts
	initBuffer [5]float64
}

// newStreamingQuantile creates an estimator for the given quantile, in the
// range [0.0, 1.0] (e.g. 0.99 for P99).
func newStreamingQuantile(p float64) *streamingQuantile {
	p = min(max(p, 0), 1)
	return &streamingQuantile{
		p:  p,
		dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

// observe adds one latency sample. O(1).
func (s *streamingQuantile) observe(d time.Duration) {
	x := float64(d)
	s.count++

	// Collect the first 5 observations before starting the algorithm.
	if s.count <= 5 {
		s.initBuffer[s.count-1] = x
		if s.count == 5 {
			s.initialize()
		}
		return
	}

	// Find the cell k such that q[k] <= x < q[k+1].
	var k int
	if x < s.q[0] {
		// New minimum.
		s.q[0] = x
		k = 0
	} else if x >= s.q[4] {
		// New maximum.
		s.q[4] = x
		k = 3
	} else {
		for k = 0; k < 4; k++ {
			if s.q[k] <= x && x < s.q[k+1] {
				break
			}
		}
	}

	// Increment positions of markers k+1 through 4.
	for i := k + 1; i < 5; i++ {
		s.n[i]++
	}

	// Update desired positions.
	for i := 0; i < 5; i++ {
		s.np[i] += s.dn[i]
	}

	// Adjust interior marker heights where they drifted from the desired
	// positions.
	for i := 1; i < 4; i++ {
		d := s.np[i] - float64(s.n[i])
		if (d >= 1 && s.n[i+1]-s.n[i] > 1) || (d <= -1 && s.n[i-1]-s.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}

			// Parabolic adjustment, falling back to linear when it would
			// break marker ordering.
			qPrime := s.parabolic(i, sign)
			if s.q[i-1] < qPrime && qPrime < s.q[i+1] {
				s.q[i] = qPrime
			} else {
				s.q[i] = s.linear(i, sign)
			}
			s.n[i] += sign
		}
	}
}

// initialize sets up the markers from the first 5 observations.
func (s *streamingQuantile) initialize() {
	// Insertion sort; the array is tiny.
	for i := 1; i < 5; i++ {
		key := s.initBuffer[i]
		j := i - 1
		for j >= 0 && s.initBuffer[j] > key {
			s.initBuffer[j+1] = s.initBuffer[j]
			j--
		}
		s.initBuffer[j+1] = key
	}

	for i := 0; i < 5; i++ {
		s.q[i] = s.initBuffer[i]
		s.n[i] = i
	}

	s.np = [5]float64{0, 2 * s.p, 4 * s.p, 2 + 2*s.p, 4}
}

// parabolic computes the P-Square parabolic adjustment formula.
func (s *streamingQuantile) parabolic(i, d int) float64 {
	df := float64(d)
	ni := float64(s.n[i])
	niPrev := float64(s.n[i-1])
	niNext := float64(s.n[i+1])

	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (s.q[i+1] - s.q[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (s.q[i] - s.q[i-1]) / (ni - niPrev)

	return s.q[i] + term1*(term2+term3)
}

// linear computes the P-Square linear adjustment formula.
func (s *streamingQuantile) linear(i, d int) float64 {
	if d == 1 {
		return s.q[i] + (s.q[i+1]-s.q[i])/float64(s.n[i+1]-s.n[i])
	}
	return s.q[i] - (s.q[i]-s.q[i-1])/float64(s.n[i]-s.n[i-1])
}

// estimate returns the current quantile estimate. O(1).
func (s *streamingQuantile) estimate() time.Duration {
	if s.count == 0 {
		return 0
	}

	if s.count < 5 {
		// Not enough observations for the markers; sort what we have.
		sorted := make([]float64, s.count)
		copy(sorted, s.initBuffer[:s.count])
		for i := 1; i < s.count; i++ {
			key := sorted[i]
			j := i - 1
			for j >= 0 && sorted[j] > key {
				sorted[j+1] = sorted[j]
				j--
			}
			sorted[j+1] = key
		}
		index := int(float64(s.count-1) * s.p)
		if index >= s.count {
			index = s.count - 1
		}
		return time.Duration(sorted[index])
	}

	// The middle marker tracks the target quantile.
	return time.Duration(s.q[2])
}
