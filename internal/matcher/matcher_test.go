package matcher

import (
	"testing"

	"rollcall-go/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatcher() *Matcher {
	return New(config.MatcherConfig{EnrollThreshold: 8.0, RecognizeThreshold: 15.0})
}

// vec builds a 4-dimensional embedding; distances stay easy to reason about.
func vec(vals ...float64) []float64 {
	return vals
}

func TestRecognizeNearestWins(t *testing.T) {
	m := newTestMatcher()
	gallery := []Entry{
		{RollNo: "CS101", Name: "Asha", Vector: vec(0, 0, 0, 0)},
		{RollNo: "CS102", Name: "Bilal", Vector: vec(10, 0, 0, 0)},
	}

	// Probe at distance 2 from Asha, 8 from Bilal.
	res, ok := m.Recognize(vec(2, 0, 0, 0), gallery)
	require.True(t, ok)
	assert.Equal(t, "CS101", res.RollNo)
	assert.InDelta(t, 2.0, res.Distance, 1e-9)
}

func TestRecognizeRejectsBeyondThreshold(t *testing.T) {
	m := newTestMatcher()
	gallery := []Entry{
		{RollNo: "CS101", Name: "Asha", Vector: vec(0, 0, 0, 0)},
	}

	// Distance exactly at the threshold is rejected: acceptance is strict.
	res, ok := m.Recognize(vec(15, 0, 0, 0), gallery)
	assert.False(t, ok)
	assert.Nil(t, res)

	res, ok = m.Recognize(vec(14.9, 0, 0, 0), gallery)
	require.True(t, ok)
	assert.Equal(t, "CS101", res.RollNo)
}

func TestRecognizeEmptyGallery(t *testing.T) {
	m := newTestMatcher()
	res, ok := m.Recognize(vec(1, 2, 3, 4), nil)
	assert.False(t, ok)
	assert.Nil(t, res)
}

func TestRecognizeSkipsDimensionMismatch(t *testing.T) {
	m := newTestMatcher()
	gallery := []Entry{
		{RollNo: "CS101", Name: "Asha", Vector: []float64{0, 0}}, // stale 2-dim vector
		{RollNo: "CS102", Name: "Bilal", Vector: vec(3, 0, 0, 0)},
	}

	res, ok := m.Recognize(vec(0, 0, 0, 0), gallery)
	require.True(t, ok)
	assert.Equal(t, "CS102", res.RollNo)
}

func TestRecognizeTieBreakIsDeterministic(t *testing.T) {
	m := newTestMatcher()
	// Two entries at identical distance; gallery order decides, and the
	// repository always delivers the gallery ordered by roll number.
	gallery := []Entry{
		{RollNo: "CS101", Name: "Asha", Vector: vec(1, 0, 0, 0)},
		{RollNo: "CS102", Name: "Bilal", Vector: vec(-1, 0, 0, 0)},
	}

	for i := 0; i < 10; i++ {
		res, ok := m.Recognize(vec(0, 0, 0, 0), gallery)
		require.True(t, ok)
		assert.Equal(t, "CS101", res.RollNo)
	}
}

func TestCheckDuplicateUsesTighterThreshold(t *testing.T) {
	m := newTestMatcher()
	gallery := []Entry{
		{RollNo: "CS101", Name: "Asha", Vector: vec(0, 0, 0, 0)},
	}

	// Distance 10: close enough to recognize, far enough to enroll.
	probe := vec(10, 0, 0, 0)

	res, dup := m.CheckDuplicate(probe, gallery)
	assert.False(t, dup)
	assert.Nil(t, res)

	recognized, ok := m.Recognize(probe, gallery)
	require.True(t, ok)
	assert.Equal(t, "CS101", recognized.RollNo)

	// Distance 7.9: refused as a re-enrollment.
	res, dup = m.CheckDuplicate(vec(7.9, 0, 0, 0), gallery)
	require.True(t, dup)
	assert.Equal(t, "CS101", res.RollNo)
}

func TestEuclidean(t *testing.T) {
	assert.InDelta(t, 5.0, euclidean([]float64{0, 0}, []float64{3, 4}), 1e-9)
	assert.InDelta(t, 0.0, euclidean([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-9)
}
