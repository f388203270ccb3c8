package ml

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/codewarden/codewarden/internal/domain/feedback"
)

// FeedbackBuffer is the append-only on-disk buffer of classifier
// feedback. Appends are cheap and lock-minimal; draining happens on an
// explicit schedule, never inside a scan.
type FeedbackBuffer struct {
	mu   sync.Mutex
	path string
}

func NewFeedbackBuffer(path string) (*FeedbackBuffer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &FeedbackBuffer{path: path}, nil
}

// Append writes one event as a JSONL row.
func (b *FeedbackBuffer) Append(e feedback.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// Pending returns the buffered events without consuming them.
func (b *FeedbackBuffer) Pending() ([]feedback.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readAll()
}

func (b *FeedbackBuffer) readAll() ([]feedback.Event, error) {
	f, err := os.Open(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []feedback.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e feedback.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// A torn tail write is tolerated; everything before it counts.
			continue
		}
		events = append(events, e)
	}
	return events, sc.Err()
}

// Drain hands all buffered events to apply and truncates the buffer
// only after apply succeeds.
func (b *FeedbackBuffer) Drain(apply func([]feedback.Event) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	events, err := b.readAll()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	if err := apply(events); err != nil {
		return err
	}
	return os.Truncate(b.path, 0)
}

// Adapter applies drained feedback to a classifier: incremental
// training per event plus a threshold nudge when the observed
// false-positive ratio drifts.
type Adapter struct {
	Classifier *Classifier
}

// Apply consumes a feedback batch. Events whose vectors cannot fit the
// model are skipped and reported in the returned count.
func (a *Adapter) Apply(events []feedback.Event) (applied int, err error) {
	if a.Classifier == nil {
		return 0, fmt.Errorf("no classifier loaded")
	}
	var falsePositives int
	for _, e := range events {
		if len(e.Features) == 0 {
			continue
		}
		if trainErr := a.Classifier.TrainIncremental(e.Features, e.TruePositive); trainErr != nil {
			continue
		}
		applied++
		if !e.TruePositive {
			falsePositives++
		}
	}
	if applied >= 5 {
		ratio := float64(falsePositives) / float64(applied)
		switch {
		case ratio > 0.6:
			a.Classifier.AdjustThreshold(1)
		case ratio < 0.2:
			a.Classifier.AdjustThreshold(-1)
		}
	}
	return applied, nil
}
