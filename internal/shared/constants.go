package shared

import "time"

// HTTP Client Configuration
const (
	DefaultHTTPTimeout     = 180 * time.Second
	DefaultDialTimeout     = 2 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// Model Configuration
const (
	DefaultModel              = "cross-encoder/nli-MiniLM2-L6-H768"
	DefaultHypothesisTemplate = "This example is {}."
	DefaultHostedURL          = "https://api-inference.huggingface.co"
)

// Warm-up inputs, run once after the model is loaded. The result is discarded.
const WarmupText = "warm up"

var WarmupLabels = []string{"a", "b", "c"}

// Backend names
const (
	BackendONNX   = "onnx"
	BackendHosted = "hosted"
)

// Endpoints, used for metrics labels
var ENDPOINTS = struct {
	CLASSIFY string
	EMBED    string
}{
	CLASSIFY: "classify",
	EMBED:    "embed",
}
