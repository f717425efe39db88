package hosted

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zeroshot-api/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBackend(t *testing.T, url string, mod func(*Config)) *Backend {
	t.Helper()
	cfg := Config{
		BaseURL:            url,
		Token:              "hf_test",
		Model:              shared.DefaultModel,
		HypothesisTemplate: shared.DefaultHypothesisTemplate,
		Timeout:            5 * time.Second,
	}
	if mod != nil {
		mod(&cfg)
	}
	b, err := New(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	return b
}

func TestClassify(t *testing.T) {
	t.Run("classic response shape", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/models/"+shared.DefaultModel, r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))

			var req zeroShotRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "I love playing soccer on weekends", req.Inputs)
			assert.Equal(t, []string{"sports", "politics", "technology"}, req.Parameters.CandidateLabels)
			assert.Equal(t, shared.DefaultHypothesisTemplate, req.Parameters.HypothesisTemplate)
			assert.False(t, req.Parameters.MultiLabel)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"sequence":"I love playing soccer on weekends","labels":["sports","technology","politics"],"scores":[0.91,0.06,0.03]}`))
		}))
		defer server.Close()

		b := newTestBackend(t, server.URL, nil)
		res, err := b.Classify(context.Background(), "I love playing soccer on weekends", []string{"sports", "politics", "technology"})
		require.NoError(t, err)

		assert.Equal(t, "sports", res.Top())
		assert.Len(t, res.Labels, 3)
		assert.Equal(t, "politics", res.Labels[2].Label)
	})

	t.Run("list response shape is ranked", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(` [{"label":"politics","score":0.2},{"label":"sports","score":0.8}]`))
		}))
		defer server.Close()

		b := newTestBackend(t, server.URL, nil)
		res, err := b.Classify(context.Background(), "text", []string{"politics", "sports"})
		require.NoError(t, err)
		assert.Equal(t, "sports", res.Top())
		assert.Equal(t, "text", res.Sequence)
	})

	t.Run("no token means no auth header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"labels":["a"],"scores":[1]}`))
		}))
		defer server.Close()

		b := newTestBackend(t, server.URL, func(c *Config) { c.Token = "" })
		res, err := b.Classify(context.Background(), "text", []string{"a"})
		require.NoError(t, err)
		assert.Equal(t, "a", res.Top())
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Model is currently loading"}`))
		}))
		defer server.Close()

		b := newTestBackend(t, server.URL, nil)
		_, err := b.Classify(context.Background(), "text", []string{"a"})

		assert.ErrorIs(t, err, shared.ErrFailedModelReqFromCode)
		assert.Contains(t, err.Error(), "503")
		assert.Contains(t, err.Error(), "currently loading")
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"labels":["a","b"],"scores":[1]}`))
		}))
		defer server.Close()

		b := newTestBackend(t, server.URL, nil)
		_, err := b.Classify(context.Background(), "text", []string{"a", "b"})
		assert.ErrorIs(t, err, shared.ErrFailedReadingResponse)
	})

	t.Run("connection error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := server.URL
		server.Close()

		b := newTestBackend(t, url, nil)
		_, err := b.Classify(context.Background(), "text", []string{"a"})
		assert.ErrorIs(t, err, shared.ErrFailedModelReq)
	})

	t.Run("empty labels", func(t *testing.T) {
		b := newTestBackend(t, "http://localhost:1", nil)
		_, err := b.Classify(context.Background(), "text", nil)
		assert.ErrorIs(t, err, shared.ErrNoCandidateLabels)
	})
}

func TestEmbed(t *testing.T) {
	t.Run("unavailable without embed model", func(t *testing.T) {
		b := newTestBackend(t, "http://localhost:1", nil)
		_, err := b.Embed(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, shared.ErrEmbeddingUnavailable)
	})

	t.Run("returns vectors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/models/sentence-transformers/all-MiniLM-L6-v2", r.URL.Path)
			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"a", "b"}, req.Inputs)
			_, _ = w.Write([]byte(`[[0.1,0.2],[0.3,0.4]]`))
		}))
		defer server.Close()

		b := newTestBackend(t, server.URL, func(c *Config) { c.EmbedModel = "sentence-transformers/all-MiniLM-L6-v2" })
		vecs, err := b.Embed(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
	})
}

func TestNew(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url"}, zap.NewNop().Sugar())
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "http://localhost"}, zap.NewNop().Sugar())
	assert.Error(t, err)

	_, err = New(Config{Model: shared.DefaultModel, HypothesisTemplate: "Topic:"}, zap.NewNop().Sugar())
	assert.ErrorContains(t, err, "placeholder")

	b, err := New(Config{Model: shared.DefaultModel}, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, shared.DefaultHostedURL+"/models/"+shared.DefaultModel, b.modelURL(b.Model()))
	assert.Equal(t, shared.BackendHosted, b.Name())
}

func TestHTTPClientIsPooledPerHost(t *testing.T) {
	b := newTestBackend(t, "http://localhost:1", nil)

	a := b.getHTTPClient("http://host-a/models/x")
	assert.Same(t, a, b.getHTTPClient("http://host-a/models/y"))
	assert.NotSame(t, a, b.getHTTPClient("http://host-b/models/x"))
	assert.NoError(t, b.Close())
}
