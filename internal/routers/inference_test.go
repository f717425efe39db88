package routers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"zeroshot-api/internal/inference"
	"zeroshot-api/internal/inference/inferencetest"
	"zeroshot-api/internal/shared"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, fb *inferencetest.Backend, cfg ServerConfig) (*echo.Echo, *inference.InferenceManager) {
	t.Helper()
	log := zap.NewNop().Sugar()
	im, err := inference.NewInferenceManager(context.Background(), fb, log)
	require.NoError(t, err)
	t.Cleanup(im.ShutDown)
	return NewServer(im, log, cfg), im
}

func sportsBackend() *inferencetest.Backend {
	return &inferencetest.Backend{
		Keywords: map[string][]string{
			"sports":     {"soccer", "football", "weekends"},
			"politics":   {"election", "senate"},
			"technology": {"software", "chip"},
		},
		Dim: 4,
	}
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeLabel(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var label string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &label), rec.Body.String())
	return label
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) []shared.ValidationDetail {
	t.Helper()
	var verr shared.ValidationError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verr), rec.Body.String())
	return verr.Detail
}

func TestClassify(t *testing.T) {
	e, _ := newTestServer(t, sportsBackend(), ServerConfig{})

	rec := do(e, http.MethodPost, "/classify",
		`{"text":"I love playing soccer on weekends","candidate_labels":["sports","politics","technology"]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
	assert.Equal(t, "sports", decodeLabel(t, rec))
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderXRequestID), "req_"))
}

func TestClassifyIsOrderIndependent(t *testing.T) {
	e, _ := newTestServer(t, sportsBackend(), ServerConfig{})

	orders := []string{
		`["sports","politics","technology"]`,
		`["technology","sports","politics"]`,
		`["politics","technology","sports"]`,
	}
	for _, labels := range orders {
		rec := do(e, http.MethodPost, "/classify", `{"text":"soccer on weekends","candidate_labels":`+labels+`}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "sports", decodeLabel(t, rec), labels)
	}

	// no label matches: every score ties and the lexically first label wins
	for _, labels := range orders {
		rec := do(e, http.MethodPost, "/classify", `{"text":"nothing relevant","candidate_labels":`+labels+`}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "politics", decodeLabel(t, rec), labels)
	}
}

func TestClassifySingleLabel(t *testing.T) {
	e, _ := newTestServer(t, sportsBackend(), ServerConfig{})

	rec := do(e, http.MethodPost, "/classify", `{"text":"anything at all","candidate_labels":["cooking"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cooking", decodeLabel(t, rec))
}

func TestClassifyIsRepeatable(t *testing.T) {
	e, _ := newTestServer(t, sportsBackend(), ServerConfig{})

	body := `{"text":"the senate election","candidate_labels":["sports","politics","technology"]}`
	first := decodeLabel(t, do(e, http.MethodPost, "/classify", body))
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, decodeLabel(t, do(e, http.MethodPost, "/classify", body)))
	}
	assert.Equal(t, "politics", first)
}

func TestClassifyValidation(t *testing.T) {
	e, _ := newTestServer(t, sportsBackend(), ServerConfig{})

	tests := []struct {
		name string
		body string
		want []shared.ValidationDetail
	}{
		{
			name: "missing candidate_labels",
			body: `{"text":"hello"}`,
			want: []shared.ValidationDetail{
				{Loc: []any{"body", "candidate_labels"}, Msg: msgFieldRequired, Type: "missing"},
			},
		},
		{
			name: "missing text",
			body: `{"candidate_labels":["a"]}`,
			want: []shared.ValidationDetail{
				{Loc: []any{"body", "text"}, Msg: msgFieldRequired, Type: "missing"},
			},
		},
		{
			name: "both missing",
			body: `{}`,
			want: []shared.ValidationDetail{
				{Loc: []any{"body", "text"}, Msg: msgFieldRequired, Type: "missing"},
				{Loc: []any{"body", "candidate_labels"}, Msg: msgFieldRequired, Type: "missing"},
			},
		},
		{
			name: "text is not a string",
			body: `{"text":42,"candidate_labels":["a"]}`,
			want: []shared.ValidationDetail{
				{Loc: []any{"body", "text"}, Msg: msgNotString, Type: "string_type"},
			},
		},
		{
			name: "text is null",
			body: `{"text":null,"candidate_labels":["a"]}`,
			want: []shared.ValidationDetail{
				{Loc: []any{"body", "text"}, Msg: msgNotString, Type: "string_type"},
			},
		},
		{
			name: "labels is a string",
			body: `{"text":"hello","candidate_labels":"sports"}`,
			want: []shared.ValidationDetail{
				{Loc: []any{"body", "candidate_labels"}, Msg: msgNotList, Type: "list_type"},
			},
		},
		{
			name: "label element is not a string",
			body: `{"text":"hello","candidate_labels":["a",1]}`,
			want: []shared.ValidationDetail{
				{Loc: []any{"body", "candidate_labels", float64(1)}, Msg: msgNotString, Type: "string_type"},
			},
		},
		{
			name: "empty labels",
			body: `{"text":"hello","candidate_labels":[]}`,
			want: []shared.ValidationDetail{
				{Loc: []any{"body", "candidate_labels"}, Msg: msgListTooShort, Type: "too_short"},
			},
		},
		{
			name: "body is a list",
			body: `["hello"]`,
			want: []shared.ValidationDetail{
				{Loc: []any{"body"}, Msg: msgNotObject, Type: "model_attributes_type"},
			},
		},
		{
			name: "body is null",
			body: `null`,
			want: []shared.ValidationDetail{
				{Loc: []any{"body"}, Msg: msgNotObject, Type: "model_attributes_type"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/classify", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, tt.want, decodeDetail(t, rec))
		})
	}
}

func TestClassifyInvalidJSON(t *testing.T) {
	e, _ := newTestServer(t, sportsBackend(), ServerConfig{})

	for _, body := range []string{`{"text":`, ``, `not json`} {
		rec := do(e, http.MethodPost, "/classify", body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
		detail := decodeDetail(t, rec)
		require.Len(t, detail, 1)
		assert.Equal(t, "json_invalid", detail[0].Type)
		assert.Equal(t, "body", detail[0].Loc[0])
	}
}

func TestClassifyBackendError(t *testing.T) {
	fb := sportsBackend()
	e, _ := newTestServer(t, fb, ServerConfig{})
	fb.ClassifyErr = shared.ErrModelRuntime.With(errors.New("session exploded"))

	rec := do(e, http.MethodPost, "/classify", `{"text":"soccer","candidate_labels":["sports"]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, shared.ErrInternalServerError.Err.Error(), rec.Body.String())
}

func TestClassifyRejectsInventedLabel(t *testing.T) {
	fb := sportsBackend()
	e, _ := newTestServer(t, fb, ServerConfig{})
	fb.Override = func(text string, _ []string) *inference.Result {
		return inference.NewResult(text, []string{"weather"}, []float64{1})
	}

	rec := do(e, http.MethodPost, "/classify", `{"text":"soccer","candidate_labels":["sports"]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEmbed(t *testing.T) {
	e, _ := newTestServer(t, sportsBackend(), ServerConfig{})

	rec := do(e, http.MethodPost, "/embed", `{"sentences":["a","bb"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var vectors [][]float32
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vectors))
	assert.Equal(t, [][]float32{{0, 1, 0, 0}, {0, 0, 1, 0}}, vectors)

	rec = do(e, http.MethodPost, "/embed", `{"sentences":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "too_short", decodeDetail(t, rec)[0].Type)

	rec = do(e, http.MethodPost, "/embed", `{"text":"a"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []any{"body", "sentences"}, decodeDetail(t, rec)[0].Loc)
}

func TestEmbedUnavailable(t *testing.T) {
	fb := sportsBackend()
	fb.Dim = 0
	e, _ := newTestServer(t, fb, ServerConfig{})

	rec := do(e, http.MethodPost, "/embed", `{"sentences":["a"]}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Contains(t, rec.Body.String(), "no embedding model")
}

func TestReady(t *testing.T) {
	e, im := newTestServer(t, sportsBackend(), ServerConfig{})

	rec := do(e, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ready shared.ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, shared.ReadyResponse{Status: "ready", Backend: "fake", Model: "fake-nli"}, ready)

	// draining: readiness fails but classification still answers
	im.MarkNotReady()
	rec = do(e, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "not_ready", ready.Status)

	rec = do(e, http.MethodPost, "/classify", `{"text":"soccer","candidate_labels":["sports","politics"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPing(t *testing.T) {
	e, _ := newTestServer(t, sportsBackend(), ServerConfig{})

	rec := do(e, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestEveryResponseHasRequestID(t *testing.T) {
	e, _ := newTestServer(t, sportsBackend(), ServerConfig{MetricsAPIKey: "secret"})

	for _, path := range []string{"/ping", "/metrics", "/ready", "/missing"} {
		rec := do(e, http.MethodGet, path, "")
		assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderXRequestID), "req_"), path)
	}
	rec := do(e, http.MethodPost, "/classify", `{"text":"hello"}`)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderXRequestID), "req_"))
}

func TestMetricsAuth(t *testing.T) {
	e, _ := newTestServer(t, sportsBackend(), ServerConfig{MetricsAPIKey: "secret"})

	rec := do(e, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, shared.ErrUnauthorized.Err.Error(), rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zeroshot_api_model_ready")
}

func TestBodyLimit(t *testing.T) {
	e, _ := newTestServer(t, sportsBackend(), ServerConfig{})

	big := `{"text":"` + strings.Repeat("a", 3<<20) + `","candidate_labels":["a"]}`
	rec := do(e, http.MethodPost, "/classify", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
