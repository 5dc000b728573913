package selector

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWheel_UniformWeights(t *testing.T) {
	w := NewWheel(4, 0.2)
	weights := w.Weights()
	require.Len(t, weights, 4)
	for _, ww := range weights {
		assert.InDelta(t, 0.25, ww, 1e-9)
	}
}

func TestSelect_WithinRange(t *testing.T) {
	w := NewWheel(5, 0.2)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		idx := w.Select(rng)
		assert.True(t, idx >= 0 && idx < 5)
	}
}

func TestSegmentUpdate_RewardsHigherScoringOperator(t *testing.T) {
	w := NewWheel(2, 0.5)
	for i := 0; i < 10; i++ {
		w.Record(0, OutcomeNewBest, DefaultScores())
		w.Record(1, OutcomeNotUsed, DefaultScores())
	}
	w.SegmentUpdate()
	weights := w.Weights()
	assert.Greater(t, weights[0], weights[1])
}

func TestSegmentUpdate_ClearsAccumulators(t *testing.T) {
	w := NewWheel(2, 0.5)
	w.Record(0, OutcomeNewBest, DefaultScores())
	w.SegmentUpdate()
	before := w.Weights()[0]
	w.SegmentUpdate() // no new records; score/uses are 0 so weight decays toward 0
	after := w.Weights()[0]
	assert.Less(t, after, before)
}

func TestResetUniform_RestoresEqualWeights(t *testing.T) {
	w := NewWheel(3, 0.5)
	w.Record(0, OutcomeNewBest, DefaultScores())
	w.SegmentUpdate()
	w.ResetUniform()
	for _, ww := range w.Weights() {
		assert.InDelta(t, 1.0/3.0, ww, 1e-9)
	}
}

func TestSelector_IndependentWheels(t *testing.T) {
	s := New(11, 11, 0.2)
	assert.Len(t, s.Destroy.Weights(), 11)
	assert.Len(t, s.Repair.Weights(), 11)
	s.Destroy.Record(0, OutcomeNewBest, DefaultScores())
	s.SegmentUpdate()
	assert.NotEqual(t, s.Destroy.Weights()[0], s.Repair.Weights()[0])
}

func TestRecord_OutOfRangeIsNoop(t *testing.T) {
	w := NewWheel(2, 0.5)
	assert.NotPanics(t, func() {
		w.Record(-1, OutcomeNewBest, DefaultScores())
		w.Record(5, OutcomeNewBest, DefaultScores())
	})
}
