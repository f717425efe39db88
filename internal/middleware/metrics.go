package middleware

import (
	"errors"
	"fmt"
	"time"

	"zeroshot-api/internal/ctx"
	"zeroshot-api/internal/metrics"
	"zeroshot-api/internal/shared"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const requestIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func NewTrackMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID, _ := nanoid.Generate(requestIDAlphabet, 28)
			reqID = "req_" + reqID
			externalID := c.Request().Header.Get(echo.HeaderXRequestID)

			logger := log.With("request_id", reqID)
			if externalID != "" {
				logger = logger.With("external_id", externalID)
			}
			c.Response().Header().Set(echo.HeaderXRequestID, reqID)

			cc := &ctx.Context{
				Context: c,
				Log:     logger,
				Reqid:   reqID,
				LogValues: &ctx.ContextLogValues{
					RequestID:  reqID,
					ExternalID: externalID,
					StartTime:  time.Now(),
				},
			}
			err := next(cc)
			if err != nil {
				// Let echo write the response now so the status we log is the one sent
				cc.Error(err)
				cc.LogValues.AddError(err)
			}

			lv := cc.LogValues
			lv.RequestDuration = time.Since(lv.StartTime)
			lv.StatusCode = cc.Response().Status
			lv.Path = cc.Path()
			logEndOfRequest(log, lv)

			if lv.Endpoint != "" {
				metrics.RequestDuration.WithLabelValues(lv.Endpoint).Observe(lv.RequestDuration.Seconds())
			}
			metrics.ResponseCodes.WithLabelValues(lv.Path, fmt.Sprintf("%d", lv.StatusCode)).Inc()
			return nil
		}
	}
}

func logEndOfRequest(log *zap.SugaredLogger, lv *ctx.ContextLogValues) {
	level := lv.LogLevel
	if level == "" {
		switch {
		case lv.StatusCode >= 500:
			level = "ERROR"
		case lv.StatusCode >= 400:
			level = "WARN"
		default:
			level = "INFO"
		}
	}
	switch level {
	case "ERROR":
		log.Errorw("end_of_request", zap.Object("request", lv))
	case "WARN":
		log.Warnw("end_of_request", zap.Object("request", lv))
	default:
		log.Infow("end_of_request", zap.Object("request", lv))
	}
}

func NewRecoverMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			defer func() {
				_ = log.Sync()
			}()
			log.Errorw("Api Panic", "error", err.Error(), "stack", string(stack))
			return c.String(500, shared.ErrInternalServerError.Err.Error())
		},
	})
}

// NewMetricsAuthMiddleware guards /metrics with a bearer key. An empty key
// leaves the endpoint open.
func NewMetricsAuthMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}
			key, err := shared.ExtractAPIKey(c)
			if err != nil {
				var rerr *shared.RequestError
				if errors.As(err, &rerr) {
					return c.String(rerr.StatusCode, rerr.Err.Error())
				}
				return c.String(401, shared.ErrUnauthorized.Err.Error())
			}
			if key != apiKey {
				return c.String(shared.ErrUnauthorized.StatusCode, shared.ErrUnauthorized.Err.Error())
			}
			return next(c)
		}
	}
}
