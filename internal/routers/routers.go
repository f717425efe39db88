package routers

import (
	"zeroshot-api/internal/inference"
	"zeroshot-api/internal/middleware"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxBodySize = "2M"

type ServerConfig struct {
	MetricsAPIKey string
	Debug         bool
}

// NewServer wires every route onto a fresh echo instance. The inference
// manager is owned by the caller.
func NewServer(im *inference.InferenceManager, log *zap.SugaredLogger, cfg ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug

	e.Use(middleware.NewTrackMiddleware(log))
	e.Use(middleware.NewRecoverMiddleware(log))

	e.GET("/ping", func(c echo.Context) error {
		return c.String(200, "")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.NewMetricsAuthMiddleware(cfg.MetricsAPIKey))

	base := e.Group("")
	base.Use(emw.CORS())
	base.Use(emw.BodyLimit(maxBodySize))

	RegisterInferenceRoutes(base, im)
	return e
}
