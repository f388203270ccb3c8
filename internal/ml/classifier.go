package ml

import (
	"fmt"
	"sync"

	"github.com/codewarden/codewarden/internal/domain/findings"
)

// DefaultThreshold above which a finding is labeled a true positive.
const DefaultThreshold = 0.8

// Threshold adjustment bounds for online adaptation.
const (
	minThreshold  = 0.5
	maxThreshold  = 0.95
	thresholdStep = 0.02
)

// Classifier scores feature vectors and labels findings. Inference is
// side-effect free; the lock only guards against concurrent retraining.
type Classifier struct {
	mu        sync.RWMutex
	net       *Network
	threshold float64
}

// NewClassifier wraps a network with the given confidence threshold.
func NewClassifier(net *Network, threshold float64) *Classifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Classifier{net: net, threshold: threshold}
}

// LoadClassifier reads a model blob and validates its input width
// against the configured feature mode.
func LoadClassifier(path string, expectDim int, threshold float64) (*Classifier, error) {
	net, err := LoadNetwork(path)
	if err != nil {
		return nil, err
	}
	if net.InputSize() != expectDim {
		return nil, fmt.Errorf("model expects %d-dim input, feature mode produces %d", net.InputSize(), expectDim)
	}
	return NewClassifier(net, threshold), nil
}

// Classify returns the raw score in [0, 1] for a feature vector. A
// base-width vector is zero-padded when the model is enhanced-width, so
// basic-mode fallback stays scoreable.
func (c *Classifier) Classify(v []float64) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(v) == BasicDim && c.net.InputSize() == EnhancedDim {
		v = PadToEnhanced(v)
	}
	return c.net.Predict(v)
}

// Label scores the finding's vector and stamps RawScore and Label. The
// raw score always survives so consumers can re-threshold later.
func (c *Classifier) Label(f *findings.Finding, v []float64) error {
	score, err := c.Classify(v)
	if err != nil {
		return err
	}
	f.RawScore = score
	if score >= c.Threshold() {
		f.Label = findings.LabelTruePositive
	} else {
		f.Label = findings.LabelFalsePositive
	}
	return nil
}

// Threshold returns the current confidence threshold.
func (c *Classifier) Threshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

// AdjustThreshold nudges the threshold by steps*thresholdStep, clamped
// to the allowed band. Positive steps make suppression stricter.
func (c *Classifier) AdjustThreshold(steps int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = clamp(c.threshold+float64(steps)*thresholdStep, minThreshold, maxThreshold)
	return c.threshold
}

// TrainIncremental applies a few SGD steps from one feedback example.
// Cheap enough to run between scans without a full retrain.
func (c *Classifier) TrainIncremental(v []float64, truePositive bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(v) == BasicDim && c.net.InputSize() == EnhancedDim {
		v = PadToEnhanced(v)
	}
	target := 0.0
	if truePositive {
		target = 1.0
	}
	return c.net.Train(v, target, 0.05)
}

// Save persists the current model blob.
func (c *Classifier) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.net.Save(path)
}

// InputSize returns the model's expected vector width.
func (c *Classifier) InputSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.net.InputSize()
}
