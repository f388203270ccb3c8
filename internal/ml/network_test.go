package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictRejectsWrongWidth(t *testing.T) {
	n := NewNetwork(BasicTopology(), 1)

	_, err := n.Predict(make([]float64, 5))
	assert.ErrorContains(t, err, "input size mismatch")

	_, err = n.Predict(make([]float64, BasicDim))
	assert.NoError(t, err)
}

func TestPredictIsDeterministic(t *testing.T) {
	n := NewNetwork(BasicTopology(), 7)
	v := []float64{0.9, 0.8, 0.95, 0.5, 0.7, 1, 1, 0.8}

	a, err := n.Predict(v)
	require.NoError(t, err)
	b, err := n.Predict(v)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0.0)
	assert.LessOrEqual(t, a, 1.0)
}

func TestTrainBatchLearnsSeparableData(t *testing.T) {
	n := NewNetwork(Topology{Input: 2, Hidden: []int{6}, Output: 1}, 42)
	pairs := []TrainingPair{
		{Features: []float64{0.9, 0.9}, Target: 1},
		{Features: []float64{0.8, 1.0}, Target: 1},
		{Features: []float64{1.0, 0.8}, Target: 1},
		{Features: []float64{0.1, 0.1}, Target: 0},
		{Features: []float64{0.0, 0.2}, Target: 0},
		{Features: []float64{0.2, 0.0}, Target: 0},
	}

	mse, err := n.TrainBatch(pairs, 500, 0.5)
	require.NoError(t, err)
	assert.Less(t, mse, 0.05)

	hi, _ := n.Predict([]float64{0.95, 0.85})
	lo, _ := n.Predict([]float64{0.05, 0.15})
	assert.Greater(t, hi, lo)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")

	n := NewNetwork(BasicTopology(), 3)
	v := []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
	want, err := n.Predict(v)
	require.NoError(t, err)

	require.NoError(t, n.Save(path))
	loaded, err := LoadNetwork(path)
	require.NoError(t, err)

	got, err := loaded.Predict(v)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadRejectsMalformedBlob(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadNetwork(path)
	assert.ErrorContains(t, err, "malformed model blob")
}

func TestLoadRejectsSchemaDrift(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version":"999","topology":{"input":8,"hidden":[4],"output":1}}`), 0o644))

	_, err := LoadNetwork(path)
	assert.ErrorContains(t, err, "incompatible model schema")
}
