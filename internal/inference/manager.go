package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"zeroshot-api/internal/metrics"
	"zeroshot-api/internal/shared"

	"github.com/manifold-inc/manifold-sdk/lib/utils"
	"go.uber.org/zap"
)

type InferenceManager struct {
	Log     *zap.SugaredLogger
	backend Backend
	ready   atomic.Bool
}

// NewInferenceManager takes ownership of backend and runs the warm-up
// classification. A failed warm-up is returned so the process never serves
// traffic with a broken model.
func NewInferenceManager(ctx context.Context, backend Backend, log *zap.SugaredLogger) (*InferenceManager, error) {
	if backend == nil {
		return nil, errors.New("inference: nil backend")
	}
	im := &InferenceManager{Log: log, backend: backend}

	start := time.Now()
	if _, err := im.Classify(ctx, shared.WarmupText, shared.WarmupLabels); err != nil {
		return nil, utils.Wrap("warm-up inference failed", err)
	}
	im.ready.Store(true)
	metrics.ModelReady.WithLabelValues(backend.Name()).Set(1)
	log.Infow("Model ready",
		"backend", backend.Name(),
		"model", backend.Model(),
		"warmup_duration", time.Since(start).String(),
	)
	return im, nil
}

// Classify scores text against labels and returns the full ranking.
func (im *InferenceManager) Classify(ctx context.Context, text string, labels []string) (*Result, error) {
	if len(labels) == 0 {
		return nil, shared.ErrNoCandidateLabels
	}
	metrics.CandidateLabels.Observe(float64(len(labels)))

	start := time.Now()
	res, err := im.backend.Classify(ctx, text, labels)
	metrics.InferenceDuration.WithLabelValues(im.backend.Name(), shared.ENDPOINTS.CLASSIFY).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ErrorCount.WithLabelValues(im.backend.Name(), shared.ErrorCode(err)).Inc()
		return nil, fmt.Errorf("classify: %w", err)
	}

	if err := checkResult(res, labels); err != nil {
		metrics.ErrorCount.WithLabelValues(im.backend.Name(), shared.ErrorCode(err)).Inc()
		return nil, fmt.Errorf("classify: %w", err)
	}

	ranked := make([]LabelScore, len(res.Labels))
	copy(ranked, res.Labels)
	SortLabels(ranked)
	return &Result{Sequence: text, Labels: ranked}, nil
}

// Top returns only the highest scoring label.
func (im *InferenceManager) Top(ctx context.Context, text string, labels []string) (string, error) {
	res, err := im.Classify(ctx, text, labels)
	if err != nil {
		return "", err
	}
	return res.Top(), nil
}

func (im *InferenceManager) Embed(ctx context.Context, sentences []string) ([][]float32, error) {
	if len(sentences) == 0 {
		return nil, shared.ErrNoSentences
	}

	start := time.Now()
	vectors, err := im.backend.Embed(ctx, sentences)
	metrics.InferenceDuration.WithLabelValues(im.backend.Name(), shared.ENDPOINTS.EMBED).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ErrorCount.WithLabelValues(im.backend.Name(), shared.ErrorCode(err)).Inc()
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(sentences) {
		err := shared.ErrUnexpectedModelOutput.With(fmt.Errorf("got %d vectors for %d sentences", len(vectors), len(sentences)))
		metrics.ErrorCount.WithLabelValues(im.backend.Name(), err.Code).Inc()
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vectors, nil
}

func (im *InferenceManager) Ready() bool {
	return im.ready.Load()
}

func (im *InferenceManager) BackendName() string {
	return im.backend.Name()
}

func (im *InferenceManager) Model() string {
	return im.backend.Model()
}

// MarkNotReady makes /ready fail while in-flight requests drain. The backend
// keeps serving until ShutDown.
func (im *InferenceManager) MarkNotReady() {
	im.ready.Store(false)
	metrics.ModelReady.WithLabelValues(im.backend.Name()).Set(0)
}

func (im *InferenceManager) ShutDown() {
	im.MarkNotReady()
	if err := im.backend.Close(); err != nil {
		im.Log.Warnw("Failed to close backend", "backend", im.backend.Name(), "error", err.Error())
	}
}

// checkResult verifies the backend returned exactly the submitted labels,
// duplicates included, each with a score in [0,1].
func checkResult(res *Result, labels []string) error {
	if res == nil || len(res.Labels) != len(labels) {
		got := 0
		if res != nil {
			got = len(res.Labels)
		}
		return shared.ErrUnexpectedModelOutput.With(fmt.Errorf("got %d labels for %d candidates", got, len(labels)))
	}
	want := make(map[string]int, len(labels))
	for _, l := range labels {
		want[l]++
	}
	for _, ls := range res.Labels {
		if want[ls.Label] == 0 {
			return shared.ErrUnexpectedModelOutput.With(fmt.Errorf("label %q was not a candidate", ls.Label))
		}
		want[ls.Label]--
		if math.IsNaN(ls.Score) || ls.Score < 0 || ls.Score > 1 {
			return shared.ErrUnexpectedModelOutput.With(fmt.Errorf("score %f for %q outside [0,1]", ls.Score, ls.Label))
		}
	}
	return nil
}
