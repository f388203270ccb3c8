package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
)

// modelSchemaVersion guards persisted blobs against format drift.
const modelSchemaVersion = "1"

// Topology describes the feed-forward layout.
type Topology struct {
	Input  int   `json:"input"`
	Hidden []int `json:"hidden"`
	Output int   `json:"output"`
}

// BasicTopology is the default network for 8-dim vectors.
func BasicTopology() Topology {
	return Topology{Input: BasicDim, Hidden: []int{12, 8}, Output: 1}
}

// EnhancedTopology is the deeper network for 24-dim vectors.
func EnhancedTopology() Topology {
	return Topology{Input: EnhancedDim, Hidden: []int{32, 16, 8}, Output: 1}
}

// Network is a small sigmoid feed-forward net trained with plain SGD.
// Inference is stateless; training mutates weights and must be
// externally serialized.
type Network struct {
	topology Topology
	// weights[l][j][i] connects input i of layer l to neuron j.
	weights [][][]float64
	biases  [][]float64
}

// NewNetwork initializes weights deterministically from seed.
func NewNetwork(t Topology, seed int64) *Network {
	rng := rand.New(rand.NewSource(seed))
	sizes := layerSizes(t)

	n := &Network{topology: t}
	for l := 1; l < len(sizes); l++ {
		in, out := sizes[l-1], sizes[l]
		scale := 1.0 / math.Sqrt(float64(in))
		w := make([][]float64, out)
		b := make([]float64, out)
		for j := 0; j < out; j++ {
			w[j] = make([]float64, in)
			for i := 0; i < in; i++ {
				w[j][i] = (rng.Float64()*2 - 1) * scale
			}
			b[j] = (rng.Float64()*2 - 1) * scale
		}
		n.weights = append(n.weights, w)
		n.biases = append(n.biases, b)
	}
	return n
}

func layerSizes(t Topology) []int {
	sizes := []int{t.Input}
	sizes = append(sizes, t.Hidden...)
	return append(sizes, t.Output)
}

// Topology returns the network layout.
func (n *Network) Topology() Topology {
	return n.topology
}

// InputSize returns the expected feature vector width.
func (n *Network) InputSize() int {
	return n.topology.Input
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// forward computes all layer activations, input included.
func (n *Network) forward(in []float64) [][]float64 {
	acts := [][]float64{in}
	cur := in
	for l := range n.weights {
		next := make([]float64, len(n.weights[l]))
		for j, wj := range n.weights[l] {
			sum := n.biases[l][j]
			for i, w := range wj {
				sum += w * cur[i]
			}
			next[j] = sigmoid(sum)
		}
		acts = append(acts, next)
		cur = next
	}
	return acts
}

// Predict runs inference and returns the single output in [0, 1].
func (n *Network) Predict(in []float64) (float64, error) {
	if len(in) != n.topology.Input {
		return 0, fmt.Errorf("input size mismatch: expected %d, got %d", n.topology.Input, len(in))
	}
	acts := n.forward(in)
	return acts[len(acts)-1][0], nil
}

// Train applies one backpropagation step for a single example.
func (n *Network) Train(in []float64, target, lr float64) error {
	if len(in) != n.topology.Input {
		return fmt.Errorf("input size mismatch: expected %d, got %d", n.topology.Input, len(in))
	}
	acts := n.forward(in)

	// Output delta for squared error with sigmoid activation.
	last := len(n.weights) - 1
	deltas := make([][]float64, len(n.weights))
	out := acts[len(acts)-1]
	deltas[last] = make([]float64, len(out))
	for j, o := range out {
		deltas[last][j] = (o - target) * o * (1 - o)
	}

	for l := last - 1; l >= 0; l-- {
		deltas[l] = make([]float64, len(n.weights[l]))
		for j := range n.weights[l] {
			var sum float64
			for k, wk := range n.weights[l+1] {
				sum += wk[j] * deltas[l+1][k]
			}
			a := acts[l+1][j]
			deltas[l][j] = sum * a * (1 - a)
		}
	}

	for l := range n.weights {
		for j := range n.weights[l] {
			for i := range n.weights[l][j] {
				n.weights[l][j][i] -= lr * deltas[l][j] * acts[l][i]
			}
			n.biases[l][j] -= lr * deltas[l][j]
		}
	}
	return nil
}

// TrainingPair couples a feature vector with its target.
type TrainingPair struct {
	Features []float64
	Target   float64
}

// TrainBatch runs SGD over pairs for the given epochs and returns the
// final epoch's mean squared error.
func (n *Network) TrainBatch(pairs []TrainingPair, epochs int, lr float64) (float64, error) {
	if len(pairs) == 0 {
		return 0, fmt.Errorf("no training pairs")
	}
	var mse float64
	for e := 0; e < epochs; e++ {
		mse = 0
		for _, p := range pairs {
			if err := n.Train(p.Features, p.Target, lr); err != nil {
				return 0, err
			}
			pred, err := n.Predict(p.Features)
			if err != nil {
				return 0, err
			}
			mse += (pred - p.Target) * (pred - p.Target)
		}
		mse /= float64(len(pairs))
	}
	return mse, nil
}

// modelBlob is the on-disk model format: topology plus weights in one
// versioned artifact.
type modelBlob struct {
	SchemaVersion string        `json:"schema_version"`
	Topology      Topology      `json:"topology"`
	Weights       [][][]float64 `json:"weights"`
	Biases        [][]float64   `json:"biases"`
}

// Save writes the model blob to path.
func (n *Network) Save(path string) error {
	blob := modelBlob{
		SchemaVersion: modelSchemaVersion,
		Topology:      n.topology,
		Weights:       n.weights,
		Biases:        n.biases,
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadNetwork reads a model blob, failing fast on schema drift or a
// malformed payload.
func LoadNetwork(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var blob modelBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("malformed model blob %s: %w", path, err)
	}
	if blob.SchemaVersion != modelSchemaVersion {
		return nil, fmt.Errorf("incompatible model schema %q (want %q)", blob.SchemaVersion, modelSchemaVersion)
	}
	sizes := layerSizes(blob.Topology)
	if len(blob.Weights) != len(sizes)-1 || len(blob.Biases) != len(sizes)-1 {
		return nil, fmt.Errorf("model blob %s: layer count mismatch", path)
	}
	for l := 1; l < len(sizes); l++ {
		if len(blob.Weights[l-1]) != sizes[l] {
			return nil, fmt.Errorf("model blob %s: layer %d width mismatch", path, l)
		}
		for _, wj := range blob.Weights[l-1] {
			if len(wj) != sizes[l-1] {
				return nil, fmt.Errorf("model blob %s: layer %d fan-in mismatch", path, l)
			}
		}
	}
	return &Network{topology: blob.Topology, weights: blob.Weights, biases: blob.Biases}, nil
}
