// Package routers
package routers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"zeroshot-api/internal/ctx"
	"zeroshot-api/internal/inference"
	"zeroshot-api/internal/metrics"
	"zeroshot-api/internal/shared"

	"github.com/labstack/echo/v4"
)

type InferenceRouter struct {
	im *inference.InferenceManager
}

func RegisterInferenceRoutes(e *echo.Group, im *inference.InferenceManager) {
	inferenceRouter := InferenceRouter{im: im}

	e.GET("/ready", inferenceRouter.Ready)
	e.POST("/classify", inferenceRouter.Classify)
	e.POST("/embed", inferenceRouter.Embed)
}

// Classify answers with the single best candidate label as a JSON string.
func (ir *InferenceRouter) Classify(cc echo.Context) error {
	c := ctx.From(cc)
	endpoint := shared.ENDPOINTS.CLASSIFY
	c.LogValues.Endpoint = endpoint

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return ir.fail(c, endpoint, fmt.Errorf("failed to read request body: %w", err))
	}
	req, err := parseClassifyRequest(body)
	if err != nil {
		return ir.fail(c, endpoint, err)
	}
	c.LogValues.LabelCount = len(req.CandidateLabels)

	label, err := ir.im.Top(c.Request().Context(), req.Text, req.CandidateLabels)
	if err != nil {
		return ir.fail(c, endpoint, err)
	}
	c.LogValues.TopLabel = label
	c.Log.Debugw("Classified", "labels", len(req.CandidateLabels), "top_label", label)

	metrics.RequestCount.WithLabelValues(endpoint, "200").Inc()
	return c.JSON(http.StatusOK, label)
}

func (ir *InferenceRouter) Embed(cc echo.Context) error {
	c := ctx.From(cc)
	endpoint := shared.ENDPOINTS.EMBED
	c.LogValues.Endpoint = endpoint

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return ir.fail(c, endpoint, fmt.Errorf("failed to read request body: %w", err))
	}
	req, err := parseEmbedRequest(body)
	if err != nil {
		return ir.fail(c, endpoint, err)
	}

	vectors, err := ir.im.Embed(c.Request().Context(), req.Sentences)
	if err != nil {
		return ir.fail(c, endpoint, err)
	}

	metrics.RequestCount.WithLabelValues(endpoint, "200").Inc()
	return c.JSON(http.StatusOK, vectors)
}

func (ir *InferenceRouter) Ready(cc echo.Context) error {
	if !ir.im.Ready() {
		return cc.JSON(http.StatusServiceUnavailable, shared.ReadyResponse{
			Status:  "not_ready",
			Backend: ir.im.BackendName(),
			Model:   ir.im.Model(),
		})
	}
	return cc.JSON(http.StatusOK, shared.ReadyResponse{
		Status:  "ready",
		Backend: ir.im.BackendName(),
		Model:   ir.im.Model(),
	})
}

// fail maps err onto a response. Validation problems and RequestErrors keep
// their status; everything else is a plain 500.
func (ir *InferenceRouter) fail(c *ctx.Context, endpoint string, err error) error {
	c.LogValues.AddError(err)

	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		metrics.RequestCount.WithLabelValues(endpoint, "422").Inc()
		return c.JSON(http.StatusUnprocessableEntity, verr)
	}

	var rerr *shared.RequestError
	if errors.As(err, &rerr) && (rerr.StatusCode < 500 || rerr.StatusCode == http.StatusNotImplemented) {
		metrics.RequestCount.WithLabelValues(endpoint, fmt.Sprintf("%d", rerr.StatusCode)).Inc()
		return c.JSON(rerr.StatusCode, map[string]string{"detail": rerr.Err.Error()})
	}

	c.Log.Errorw("Inference failed", "endpoint", endpoint, "code", shared.ErrorCode(err), "error", err.Error())
	metrics.RequestCount.WithLabelValues(endpoint, "500").Inc()
	return c.String(shared.ErrInternalServerError.StatusCode, shared.ErrInternalServerError.Err.Error())
}
