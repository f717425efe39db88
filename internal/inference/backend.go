// Package inference wraps the zero-shot model behind an InferenceManager that
// is loaded once at startup and shared by every request.
package inference

import "context"

// Backend is a model runtime able to score candidate labels against a text.
// Implementations must be safe for concurrent use once constructed.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Model is the model identifier the backend serves.
	Model() string
	// Classify returns one LabelScore per label, scores in [0,1].
	Classify(ctx context.Context, text string, labels []string) (*Result, error)
	// Embed returns one vector per sentence, in input order.
	Embed(ctx context.Context, sentences []string) ([][]float32, error)
	Close() error
}
