package onnx

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Only the first call has
// any effect; later calls return the first call's error.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// runner executes a model over a tokenized batch and returns the flat output
// tensor. Split out from session so scoring can be tested without a model.
type runner interface {
	run(enc *encoding) ([]float32, error)
	// outputDim is the size of the last output axis.
	outputDim() int64
	close() error
}

// session wraps a DynamicAdvancedSession for BERT-style encoders. rank is 2
// for sequence classification heads ([batch, classes]) and 3 for bare
// encoders ([batch, seq, hidden]).
type session struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	rank       int
	lastDim    int64
}

func newSession(modelPath string, rank int, threads int) (*session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}

	inputNames, err := validateInputs(inputs)
	if err != nil {
		return nil, err
	}

	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}
	outputName := outputs[0].Name
	dims := outputs[0].Dimensions
	if len(dims) != rank {
		return nil, fmt.Errorf("onnx: expected %dD output tensor, got %v", rank, dims)
	}
	lastDim := dims[rank-1]
	if lastDim <= 0 {
		return nil, fmt.Errorf("onnx: output %q has dynamic last dimension %v", outputName, dims)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if threads > 0 {
		_ = opts.SetIntraOpNumThreads(threads)
	}
	_ = opts.SetInterOpNumThreads(1)

	s, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &session{
		session:    s,
		inputNames: inputNames,
		outputName: outputName,
		rank:       rank,
		lastDim:    lastDim,
	}, nil
}

// validateInputs requires input_ids and attention_mask. token_type_ids is
// passed only when the model declares it (RoBERTa/DistilBERT exports do not).
func validateInputs(inputs []ort.InputOutputInfo) ([]string, error) {
	nameSet := make(map[string]bool, len(inputs))
	for _, inp := range inputs {
		nameSet[inp.Name] = true
	}
	names := []string{"input_ids", "attention_mask"}
	for _, name := range names {
		if !nameSet[name] {
			return nil, fmt.Errorf("onnx: model missing required input %q", name)
		}
	}
	if nameSet["token_type_ids"] {
		names = append(names, "token_type_ids")
	}
	if len(names) != len(inputs) {
		return nil, fmt.Errorf("onnx: model has unsupported inputs %v", inputs)
	}
	return names, nil
}

func (s *session) outputDim() int64 {
	return s.lastDim
}

func (s *session) run(enc *encoding) ([]float32, error) {
	shape := ort.NewShape(enc.batchSize, enc.seqLen)

	data := map[string][]int64{
		"input_ids":      enc.inputIDs,
		"attention_mask": enc.attentionMask,
		"token_type_ids": enc.tokenTypeIDs,
	}
	inputs := make([]ort.Value, 0, len(s.inputNames))
	for _, name := range s.inputNames {
		t, err := ort.NewTensor(shape, data[name])
		if err != nil {
			return nil, fmt.Errorf("onnx: failed to create %s tensor: %w", name, err)
		}
		defer t.Destroy()
		inputs = append(inputs, t)
	}

	outShape := ort.NewShape(enc.batchSize, s.lastDim)
	if s.rank == 3 {
		outShape = ort.NewShape(enc.batchSize, enc.seqLen, s.lastDim)
	}
	tOut, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	if err := s.session.Run(inputs, []ort.Value{tOut}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy data out before the tensor is destroyed.
	src := tOut.GetData()
	out := make([]float32, len(src))
	copy(out, src)
	return out, nil
}

func (s *session) close() error {
	return s.session.Destroy()
}
