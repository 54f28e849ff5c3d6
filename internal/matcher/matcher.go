// Package matcher implements nearest-neighbor identity matching over the
// enrolled embedding gallery. The same exhaustive scan serves two modes
// with deliberately different thresholds: duplicate rejection at enrollment
// (tight) and recognition at attendance time (loose).
package matcher

import (
	"math"

	"rollcall-go/config"
)

// Entry is one (identity, embedding) pair from the gallery.
type Entry struct {
	RollNo string
	Name   string
	Vector []float64
}

// Result is the best match found for a probe.
type Result struct {
	RollNo   string
	Name     string
	Distance float64
}

// Matcher compares probe embeddings against the gallery.
type Matcher struct {
	enrollThreshold    float64
	recognizeThreshold float64
}

// New creates a matcher from config thresholds.
func New(cfg config.MatcherConfig) *Matcher {
	return &Matcher{
		enrollThreshold:    cfg.EnrollThreshold,
		recognizeThreshold: cfg.RecognizeThreshold,
	}
}

// Thresholds returns the configured (enroll, recognize) thresholds.
func (m *Matcher) Thresholds() (float64, float64) {
	return m.enrollThreshold, m.recognizeThreshold
}

// Recognize scans the gallery for the identity nearest to the probe.
// It returns the best match and true when the minimum distance is below
// the recognition threshold, otherwise nil and false (no match).
func (m *Matcher) Recognize(probe []float64, gallery []Entry) (*Result, bool) {
	best := nearest(probe, gallery)
	if best == nil || best.Distance >= m.recognizeThreshold {
		return nil, false
	}
	return best, true
}

// CheckDuplicate scans the gallery for an existing identity whose embedding
// is too close to the probe to be a different person. It returns the
// competing identity and true when the minimum distance is below the
// enrollment threshold, meaning the enrollment must be rejected.
func (m *Matcher) CheckDuplicate(probe []float64, gallery []Entry) (*Result, bool) {
	best := nearest(probe, gallery)
	if best == nil || best.Distance >= m.enrollThreshold {
		return nil, false
	}
	return best, true
}

// nearest performs the exhaustive linear scan. O(N*E) per probe is fine at
// classroom scale, and precision matters more than asymptotics here.
//
// Ties on exactly equal minimum distance resolve to the entry seen first.
// Callers obtain the gallery ordered by roll number ascending, so the
// lowest roll number wins; callers must not rely on a specific winner
// among exact ties beyond that.
func nearest(probe []float64, gallery []Entry) *Result {
	var best *Result
	for _, entry := range gallery {
		if len(entry.Vector) != len(probe) {
			// Dimension drift from a different embedding model; skip.
			continue
		}
		dist := euclidean(probe, entry.Vector)
		if best == nil || dist < best.Distance {
			best = &Result{RollNo: entry.RollNo, Name: entry.Name, Distance: dist}
		}
	}
	return best
}

// euclidean computes the L2 distance between two equal-length vectors.
func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
