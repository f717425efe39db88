// Package onnx runs an NLI cross-encoder exported to ONNX in-process and
// turns it into a zero-shot classifier.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"zeroshot-api/internal/inference"
	"zeroshot-api/internal/shared"
)

type Config struct {
	// ModelDir holds model.onnx, config.json and the tokenizer of the NLI
	// model: vocab.txt for BERT checkpoints, tokenizer.json for anything else.
	ModelDir string
	// EmbedModelDir optionally holds model.onnx and tokenizer files of a
	// sentence encoder used by Embed.
	EmbedModelDir string
	// LibPath is the ONNX Runtime shared library. Defaults to
	// <ModelDir>/libonnxruntime.so.
	LibPath string
	// Model is the identifier reported in logs.
	Model              string
	HypothesisTemplate string
	Threads            int
}

// Backend scores each candidate label by running (text, hypothesis) pairs
// through the cross-encoder and normalizing the entailment logits with a
// softmax across candidates.
type Backend struct {
	model      string
	template   string
	tok        *tokenizer
	nli        runner
	entailment int

	embedTok *tokenizer
	embedder runner
}

var _ inference.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	if cfg.ModelDir == "" {
		return nil, errors.New("onnx: model dir is required")
	}
	libPath := cfg.LibPath
	if libPath == "" {
		libPath = filepath.Join(cfg.ModelDir, libFile)
	}
	template := cfg.HypothesisTemplate
	if template == "" {
		template = shared.DefaultHypothesisTemplate
	}
	if err := shared.ValidateHypothesisTemplate(template); err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}

	mcfg, err := loadModelConfig(cfg.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}
	entailment, err := mcfg.entailmentIndex()
	if err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}

	tok, err := loadTokenizer(cfg.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}

	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	nli, err := newSession(filepath.Join(cfg.ModelDir, modelFile), 2, cfg.Threads)
	if err != nil {
		return nil, err
	}
	if int64(entailment) >= nli.outputDim() {
		_ = nli.close()
		return nil, fmt.Errorf("onnx: entailment index %d out of range for %d classes", entailment, nli.outputDim())
	}

	b := &Backend{
		model:      cfg.Model,
		template:   template,
		tok:        tok,
		nli:        nli,
		entailment: entailment,
	}

	if cfg.EmbedModelDir != "" {
		if err := b.loadEmbedder(cfg.EmbedModelDir, cfg.Threads); err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *Backend) loadEmbedder(dir string, threads int) error {
	if _, err := os.Stat(filepath.Join(dir, modelFile)); err != nil {
		return fmt.Errorf("onnx: embedding model: %w", err)
	}
	tok, err := loadTokenizer(dir)
	if err != nil {
		return fmt.Errorf("onnx: embedding model: %w", err)
	}
	sess, err := newSession(filepath.Join(dir, modelFile), 3, threads)
	if err != nil {
		return fmt.Errorf("onnx: embedding model: %w", err)
	}
	b.embedTok = tok
	b.embedder = sess
	return nil
}

func (b *Backend) Name() string {
	return shared.BackendONNX
}

func (b *Backend) Model() string {
	return b.model
}

func (b *Backend) Classify(ctx context.Context, text string, labels []string) (*inference.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.ErrModelContext.With(err)
	}
	if len(labels) == 0 {
		return nil, shared.ErrNoCandidateLabels
	}

	hypotheses := make([]string, len(labels))
	for i, label := range labels {
		hypotheses[i] = shared.FillTemplate(b.template, label)
	}
	enc, err := b.tok.encodePairs(text, hypotheses)
	if err != nil {
		return nil, shared.ErrModelRuntime.With(err)
	}

	logits, err := b.nli.run(enc)
	if err != nil {
		return nil, shared.ErrModelRuntime.With(err)
	}
	entail, err := entailmentLogits(logits, len(labels), b.nli.outputDim(), b.entailment)
	if err != nil {
		return nil, shared.ErrUnexpectedModelOutput.With(err)
	}
	return inference.NewResult(text, labels, inference.Softmax(entail)), nil
}

// entailmentLogits picks column idx out of a flat [n, classes] logits matrix.
func entailmentLogits(logits []float32, n int, classes int64, idx int) ([]float64, error) {
	if int64(len(logits)) != int64(n)*classes {
		return nil, fmt.Errorf("expected %d logits, got %d", int64(n)*classes, len(logits))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(logits[int64(i)*classes+int64(idx)])
	}
	return out, nil
}

func (b *Backend) Embed(ctx context.Context, sentences []string) ([][]float32, error) {
	if b.embedder == nil {
		return nil, shared.ErrEmbeddingUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, shared.ErrModelContext.With(err)
	}
	if len(sentences) == 0 {
		return nil, nil
	}

	enc, err := b.embedTok.encodeBatch(sentences)
	if err != nil {
		return nil, shared.ErrModelRuntime.With(err)
	}
	hidden, err := b.embedder.run(enc)
	if err != nil {
		return nil, shared.ErrModelRuntime.With(err)
	}
	dim := b.embedder.outputDim()
	if int64(len(hidden)) != enc.batchSize*enc.seqLen*dim {
		return nil, shared.ErrUnexpectedModelOutput.With(fmt.Errorf("hidden state size %d", len(hidden)))
	}

	pooled := meanPool(hidden, enc.attentionMask, enc.batchSize, enc.seqLen, dim)
	out := make([][]float32, enc.batchSize)
	for i := int64(0); i < enc.batchSize; i++ {
		vec := pooled[i*dim : (i+1)*dim]
		normalize(vec)
		out[i] = vec
	}
	return out, nil
}

// Close releases ONNX Runtime sessions.
func (b *Backend) Close() error {
	var errs []error
	if b.nli != nil {
		errs = append(errs, b.nli.close())
	}
	if b.embedder != nil {
		errs = append(errs, b.embedder.close())
	}
	return errors.Join(errs...)
}
