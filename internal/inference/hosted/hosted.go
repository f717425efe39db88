// Package hosted talks to a hosted inference service using the Hugging Face
// Inference API wire format for zero-shot classification and feature
// extraction.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"zeroshot-api/internal/inference"
	"zeroshot-api/internal/shared"

	"go.uber.org/zap"
)

type Config struct {
	BaseURL            string
	Token              string
	Model              string
	EmbedModel         string
	HypothesisTemplate string
	Timeout            time.Duration
}

type Backend struct {
	cfg          Config
	log          *zap.SugaredLogger
	httpClients  map[string]*http.Client
	clientsMutex sync.RWMutex
}

var _ inference.Backend = (*Backend)(nil)

type zeroShotParameters struct {
	CandidateLabels    []string `json:"candidate_labels"`
	HypothesisTemplate string   `json:"hypothesis_template,omitempty"`
	MultiLabel         bool     `json:"multi_label"`
}

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
}

// zeroShotResponse is the classic pipeline output. Newer deployments return
// a list of {label, score} instead; decodeZeroShot accepts both.
type zeroShotResponse struct {
	Sequence string    `json:"sequence"`
	Labels   []string  `json:"labels"`
	Scores   []float64 `json:"scores"`
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

func New(cfg Config, log *zap.SugaredLogger) (*Backend, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = shared.DefaultHostedURL
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("hosted: invalid base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.Model == "" {
		return nil, errors.New("hosted: model is required")
	}
	if cfg.HypothesisTemplate != "" {
		if err := shared.ValidateHypothesisTemplate(cfg.HypothesisTemplate); err != nil {
			return nil, fmt.Errorf("hosted: %w", err)
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = shared.DefaultHTTPTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Backend{
		cfg:         cfg,
		log:         log,
		httpClients: make(map[string]*http.Client),
	}, nil
}

func (b *Backend) Name() string {
	return shared.BackendHosted
}

func (b *Backend) Model() string {
	return b.cfg.Model
}

func (b *Backend) modelURL(model string) string {
	return b.cfg.BaseURL + "/models/" + model
}

func (b *Backend) getHTTPClient(modelURL string) *http.Client {
	parsedURL, err := url.Parse(modelURL)
	if err != nil {
		b.log.Warnw("Failed to parse model URL, using full URL as key", "url", modelURL, "error", err)
		parsedURL = &url.URL{Host: modelURL}
	}
	host := parsedURL.Host

	b.clientsMutex.RLock()
	if client, exists := b.httpClients[host]; exists {
		b.clientsMutex.RUnlock()
		return client
	}
	b.clientsMutex.RUnlock()

	b.clientsMutex.Lock()
	defer b.clientsMutex.Unlock()

	if client, exists := b.httpClients[host]; exists {
		return client
	}

	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: shared.DefaultDialTimeout,
		}).DialContext,
		TLSHandshakeTimeout: shared.DefaultDialTimeout,
		DisableKeepAlives:   false,
	}
	client := &http.Client{Transport: tr, Timeout: b.cfg.Timeout}

	b.httpClients[host] = client
	b.log.Infow("Created new HTTP client for host", "host", host, "full_url", modelURL)

	return client
}

// post sends body to modelURL and returns the raw 200 response body.
func (b *Backend) post(ctx context.Context, modelURL string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, modelURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.Token)
	}

	resp, err := b.getHTTPClient(modelURL).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, shared.ErrModelContext.With(ctx.Err())
		}
		return nil, shared.ErrFailedModelReq.With(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, shared.ErrFailedReadingResponse.With(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, shared.ErrFailedModelReqFromCode.With(fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody, 512)))
	}
	return respBody, nil
}

func (b *Backend) Classify(ctx context.Context, text string, labels []string) (*inference.Result, error) {
	if len(labels) == 0 {
		return nil, shared.ErrNoCandidateLabels
	}
	body, err := b.post(ctx, b.modelURL(b.cfg.Model), zeroShotRequest{
		Inputs: text,
		Parameters: zeroShotParameters{
			CandidateLabels:    labels,
			HypothesisTemplate: b.cfg.HypothesisTemplate,
			MultiLabel:         false,
		},
	})
	if err != nil {
		return nil, err
	}
	res, err := decodeZeroShot(body, text)
	if err != nil {
		return nil, shared.ErrFailedReadingResponse.With(err)
	}
	return res, nil
}

func decodeZeroShot(body []byte, text string) (*inference.Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var pairs []inference.LabelScore
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		inference.SortLabels(pairs)
		return &inference.Result{Sequence: text, Labels: pairs}, nil
	}

	var out zeroShotResponse
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Labels) != len(out.Scores) {
		return nil, fmt.Errorf("response has %d labels and %d scores", len(out.Labels), len(out.Scores))
	}
	seq := out.Sequence
	if seq == "" {
		seq = text
	}
	return inference.NewResult(seq, out.Labels, out.Scores), nil
}

func (b *Backend) Embed(ctx context.Context, sentences []string) ([][]float32, error) {
	if b.cfg.EmbedModel == "" {
		return nil, shared.ErrEmbeddingUnavailable
	}
	body, err := b.post(ctx, b.modelURL(b.cfg.EmbedModel), embedRequest{Inputs: sentences})
	if err != nil {
		return nil, err
	}
	var vectors [][]float32
	if err := json.Unmarshal(body, &vectors); err != nil {
		return nil, shared.ErrFailedReadingResponse.With(err)
	}
	return vectors, nil
}

// Close drops idle connections held by the pooled clients.
func (b *Backend) Close() error {
	b.clientsMutex.Lock()
	defer b.clientsMutex.Unlock()
	for _, c := range b.httpClients {
		c.CloseIdleConnections()
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
