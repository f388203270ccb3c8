package ml

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewarden/codewarden/internal/domain/feedback"
	"github.com/codewarden/codewarden/internal/domain/findings"
)

func trainedClassifier(t *testing.T) *Classifier {
	t.Helper()
	ts := NewTrainingSet()
	cls, _, err := Train(BasicTopology(), ts, TrainOptions{Epochs: 300, LearningRate: 0.4, Seed: 11})
	require.NoError(t, err)
	return cls
}

func TestLabelStampsScoreAndLabel(t *testing.T) {
	cls := trainedClassifier(t)
	f := sampleFinding()
	v := NewFeatureExtractor().Extract(&f)

	require.NoError(t, cls.Label(&f, v))
	assert.GreaterOrEqual(t, f.RawScore, 0.0)
	assert.LessOrEqual(t, f.RawScore, 1.0)
	assert.Contains(t, []findings.Label{findings.LabelTruePositive, findings.LabelFalsePositive}, f.Label)

	if f.RawScore >= cls.Threshold() {
		assert.Equal(t, findings.LabelTruePositive, f.Label)
	} else {
		assert.Equal(t, findings.LabelFalsePositive, f.Label)
	}
}

func TestClassifyIsRepeatable(t *testing.T) {
	cls := trainedClassifier(t)
	v := []float64{0.9, 0.8, 0.95, 0.4, 0.9, 1, 1, 0.75}

	a, err := cls.Classify(v)
	require.NoError(t, err)
	b, err := cls.Classify(v)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEnhancedModelScoresBasicVector(t *testing.T) {
	ts := NewTrainingSet()
	cls, _, err := Train(EnhancedTopology(), ts, TrainOptions{Epochs: 100, Seed: 5})
	require.NoError(t, err)

	score, err := cls.Classify(make([]float64, BasicDim))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestBootstrapWithFewRealExamples(t *testing.T) {
	// 8 real examples is below the cold-start floor, so bootstrap fills in.
	ts := NewTrainingSet()
	for i := 0; i < 8; i++ {
		v := make([]float64, BasicDim)
		for j := range v {
			v[j] = float64((i+j)%10) / 10.0
		}
		ts.Add(Example{
			FindingID:    "real",
			Features:     v,
			TruePositive: i%2 == 0,
			Source:       feedback.SourceUser,
			CreatedAt:    time.Now(),
		})
	}

	cls, _, err := Train(BasicTopology(), ts, TrainOptions{Epochs: 100, Seed: 3})
	require.NoError(t, err)
	assert.Greater(t, len(ts.Examples), 8)

	for i := 0; i < 5; i++ {
		held := make([]float64, BasicDim)
		for j := range held {
			held[j] = float64((i*3+j)%7) / 7.0
		}
		score, err := cls.Classify(held)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestBalancedPairsEqualizeClasses(t *testing.T) {
	ts := NewTrainingSet()
	for i := 0; i < 9; i++ {
		ts.Add(Example{Features: make([]float64, BasicDim), TruePositive: true})
	}
	for i := 0; i < 3; i++ {
		ts.Add(Example{Features: make([]float64, BasicDim), TruePositive: false})
	}

	pairs := ts.BalancedPairs()
	require.Len(t, pairs, 6)
	var pos int
	for _, p := range pairs {
		if p.Target >= 0.5 {
			pos++
		}
	}
	assert.Equal(t, 3, pos)
}

func TestLoadClassifierRejectsDimMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, NewNetwork(BasicTopology(), 1).Save(path))

	_, err := LoadClassifier(path, EnhancedDim, DefaultThreshold)
	assert.ErrorContains(t, err, "feature mode produces")

	_, err = LoadClassifier(path, BasicDim, DefaultThreshold)
	assert.NoError(t, err)
}

func TestAdjustThresholdClamps(t *testing.T) {
	cls := NewClassifier(NewNetwork(BasicTopology(), 1), 0.9)
	for i := 0; i < 20; i++ {
		cls.AdjustThreshold(1)
	}
	assert.Equal(t, 0.95, cls.Threshold())
	for i := 0; i < 100; i++ {
		cls.AdjustThreshold(-1)
	}
	assert.Equal(t, 0.5, cls.Threshold())
}

func TestFeedbackBufferAppendDrain(t *testing.T) {
	buf, err := NewFeedbackBuffer(filepath.Join(t.TempDir(), "feedback.jsonl"))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, buf.Append(feedback.Event{
			FindingID:    "f",
			Features:     []float64{0.1, 0.2},
			TruePositive: i%2 == 0,
			Source:       feedback.SourceUser,
			CreatedAt:    time.Now(),
		}))
	}

	pending, err := buf.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 4)

	var drained int
	require.NoError(t, buf.Drain(func(events []feedback.Event) error {
		drained = len(events)
		return nil
	}))
	assert.Equal(t, 4, drained)

	pending, err = buf.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAdapterRaisesThresholdUnderFalsePositives(t *testing.T) {
	cls := trainedClassifier(t)
	before := cls.Threshold()

	events := make([]feedback.Event, 10)
	for i := range events {
		events[i] = feedback.Event{
			Features:     []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0, 0, 0.5},
			TruePositive: false,
			Source:       feedback.SourceUser,
		}
	}
	adapter := &Adapter{Classifier: cls}
	applied, err := adapter.Apply(events)
	require.NoError(t, err)
	assert.Equal(t, 10, applied)
	assert.Greater(t, cls.Threshold(), before-1e-9)
	assert.InDelta(t, before+thresholdStep, cls.Threshold(), 1e-9)
}
