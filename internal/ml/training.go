package ml

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/codewarden/codewarden/internal/domain/feedback"
)

// bootstrapFloor is the example count below which synthetic heuristic
// labels are generated.
const bootstrapFloor = 10

// Example is one labeled training row.
type Example struct {
	FindingID    string          `json:"finding_id"`
	Features     []float64       `json:"features"`
	TruePositive bool            `json:"true_positive"`
	Source       feedback.Source `json:"source"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TrainingSet manages labeled examples for offline training.
type TrainingSet struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Examples  []Example `json:"examples"`
}

func NewTrainingSet() *TrainingSet {
	return &TrainingSet{Version: "1", CreatedAt: time.Now().UTC()}
}

// LoadTrainingSet reads a JSON training set from path.
func LoadTrainingSet(path string) (*TrainingSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ts TrainingSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("malformed training set %s: %w", path, err)
	}
	return &ts, nil
}

// Save writes the set to path.
func (ts *TrainingSet) Save(path string) error {
	data, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Add appends an example.
func (ts *TrainingSet) Add(e Example) {
	ts.Examples = append(ts.Examples, e)
}

// Pairs converts examples into training pairs, padding or truncating
// nothing: dimensionality must already match the target network.
func (ts *TrainingSet) Pairs() []TrainingPair {
	out := make([]TrainingPair, 0, len(ts.Examples))
	for _, e := range ts.Examples {
		target := 0.0
		if e.TruePositive {
			target = 1.0
		}
		out = append(out, TrainingPair{Features: e.Features, Target: target})
	}
	return out
}

// BalancedPairs equalizes positive/negative counts by truncating the
// majority class.
func (ts *TrainingSet) BalancedPairs() []TrainingPair {
	var pos, neg []TrainingPair
	for _, p := range ts.Pairs() {
		if p.Target >= 0.5 {
			pos = append(pos, p)
		} else {
			neg = append(neg, p)
		}
	}
	n := len(pos)
	if len(neg) < n {
		n = len(neg)
	}
	out := make([]TrainingPair, 0, 2*n)
	out = append(out, pos[:n]...)
	out = append(out, neg[:n]...)
	return out
}

// Bootstrap synthesizes heuristic examples until the set clears the
// cold-start floor. Synthetic rows mirror the strong-signal shapes real
// findings produce: confident analyzers with rich context are positives,
// low-severity noise is negative.
func (ts *TrainingSet) Bootstrap(dim int, seed int64) {
	if len(ts.Examples) >= bootstrapFloor {
		return
	}
	rng := rand.New(rand.NewSource(seed))
	shapes := []struct {
		base         []float64
		truePositive bool
	}{
		{[]float64{1.0, 0.9, 0.95, 0.8, 0.9, 1.0, 1.0, 0.8}, true},
		{[]float64{0.8, 0.8, 0.9, 0.7, 0.8, 1.0, 1.0, 0.7}, true},
		{[]float64{0.8, 0.9, 0.85, 0.6, 0.5, 1.0, 0.0, 0.8}, true},
		{[]float64{0.2, 0.3, 0.5, 0.2, 0.3, 0.0, 0.0, 0.4}, false},
		{[]float64{0.2, 0.2, 0.5, 0.3, 0.2, 0.0, 0.0, 0.3}, false},
		{[]float64{0.4, 0.5, 0.5, 0.4, 0.4, 0.0, 1.0, 0.5}, false},
	}
	need := bootstrapFloor - len(ts.Examples)
	for i := 0; i < need*2; i++ {
		shape := shapes[i%len(shapes)]
		v := make([]float64, dim)
		for j := 0; j < dim; j++ {
			base := 0.0
			if j < len(shape.base) {
				base = shape.base[j]
			} else if shape.truePositive {
				base = 0.6
			} else {
				base = 0.3
			}
			v[j] = clamp(base+(rng.Float64()-0.5)*0.1, 0, 1)
		}
		ts.Add(Example{
			FindingID:    fmt.Sprintf("synthetic-%d", i),
			Features:     v,
			TruePositive: shape.truePositive,
			Source:       feedback.SourceHeuristic,
			CreatedAt:    time.Now().UTC(),
		})
	}
}

// TrainOptions for offline training.
type TrainOptions struct {
	Epochs       int
	LearningRate float64
	Balanced     bool
	Seed         int64
}

// Train fits a fresh network of the given topology over the set and
// returns the trained classifier plus final MSE.
func Train(t Topology, ts *TrainingSet, opts TrainOptions) (*Classifier, float64, error) {
	if opts.Epochs <= 0 {
		opts.Epochs = 200
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.3
	}
	ts.Bootstrap(t.Input, opts.Seed)

	pairs := ts.Pairs()
	if opts.Balanced {
		pairs = ts.BalancedPairs()
	}
	for _, p := range pairs {
		if len(p.Features) != t.Input {
			return nil, 0, fmt.Errorf("training example has %d features, topology wants %d", len(p.Features), t.Input)
		}
	}

	net := NewNetwork(t, opts.Seed)
	mse, err := net.TrainBatch(pairs, opts.Epochs, opts.LearningRate)
	if err != nil {
		return nil, 0, err
	}
	return NewClassifier(net, DefaultThreshold), mse, nil
}
