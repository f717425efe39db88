// Package inferencetest provides a deterministic in-memory Backend for tests.
package inferencetest

import (
	"context"
	"strings"
	"sync"

	"zeroshot-api/internal/inference"
	"zeroshot-api/internal/shared"
)

// Backend scores a label by how often it (or one of its Keywords) appears in
// the text. It never loads a model.
type Backend struct {
	// Keywords maps a label to extra words that count as a match for it.
	Keywords map[string][]string
	// ClassifyErr, when set, is returned by every Classify call.
	ClassifyErr error
	// Override, when set, replaces the computed result.
	Override func(text string, labels []string) *inference.Result
	// Dim is the size of the one-hot vectors Embed returns. Zero means no
	// embedding model.
	Dim int

	mu     sync.Mutex
	calls  []string
	closed bool
}

func (b *Backend) Name() string  { return "fake" }
func (b *Backend) Model() string { return "fake-nli" }

func (b *Backend) Classify(_ context.Context, text string, labels []string) (*inference.Result, error) {
	b.mu.Lock()
	b.calls = append(b.calls, text)
	b.mu.Unlock()

	if b.ClassifyErr != nil {
		return nil, b.ClassifyErr
	}
	if b.Override != nil {
		return b.Override(text, labels), nil
	}

	words := strings.Fields(strings.ToLower(text))
	logits := make([]float64, len(labels))
	for i, label := range labels {
		terms := append([]string{strings.ToLower(label)}, b.Keywords[label]...)
		for _, w := range words {
			for _, term := range terms {
				if w == term {
					logits[i]++
				}
			}
		}
	}
	return inference.NewResult(text, labels, inference.Softmax(logits)), nil
}

func (b *Backend) Embed(_ context.Context, sentences []string) ([][]float32, error) {
	if b.Dim == 0 {
		return nil, shared.ErrEmbeddingUnavailable
	}
	out := make([][]float32, len(sentences))
	for i, s := range sentences {
		vec := make([]float32, b.Dim)
		vec[len(s)%b.Dim] = 1
		out[i] = vec
	}
	return out, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Calls returns the texts passed to Classify, warm-up included.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
