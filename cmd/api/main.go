package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"zeroshot-api/internal/inference"
	"zeroshot-api/internal/inference/hosted"
	"zeroshot-api/internal/inference/onnx"
	"zeroshot-api/internal/routers"
	"zeroshot-api/internal/shared"

	"github.com/manifold-inc/manifold-sdk/lib/eflag"
	"go.uber.org/zap"
)

func main() {
	// Flags / ENV Variables
	addr := flag.String("addr", ":8000", "Listen address")
	debug := flag.Bool("debug", false, "Debug enabled")
	metricsAPIKey := flag.String("metrics-api-key", "", "Metrics api key")

	backendName := flag.String("backend", shared.BackendONNX, "Model backend: onnx or hosted")
	model := flag.String("model", shared.DefaultModel, "NLI model id")
	hypothesisTemplate := flag.String("hypothesis-template", shared.DefaultHypothesisTemplate, "NLI hypothesis template")

	modelDir := flag.String("model-dir", "models/nli", "ONNX NLI model directory")
	embedModelDir := flag.String("embed-model-dir", "", "ONNX embedding model directory")
	onnxLib := flag.String("onnx-lib", "", "ONNX Runtime shared library path")

	hostedURL := flag.String("hosted-url", shared.DefaultHostedURL, "Hosted inference base URL")
	hostedToken := flag.String("hosted-token", "", "Hosted inference token")
	embedModel := flag.String("embed-model", "", "Hosted embedding model id")

	err := eflag.SetFlagsFromEnvironment()
	if err != nil {
		panic(err)
	}
	flag.Parse()

	var logger *zap.Logger
	if !*debug {
		logger, err = zap.NewProduction()
		if err != nil {
			panic("Failed init logger")
		}
	}
	if *debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic("Failed init logger")
		}
	}
	log := logger.Sugar()
	defer func() {
		_ = log.Sync()
	}()

	if err := shared.ValidateHypothesisTemplate(*hypothesisTemplate); err != nil {
		log.Fatalw("Invalid hypothesis template", "error", err.Error())
	}

	var backend inference.Backend
	switch *backendName {
	case shared.BackendONNX:
		backend, err = onnx.New(onnx.Config{
			ModelDir:           *modelDir,
			EmbedModelDir:      *embedModelDir,
			LibPath:            *onnxLib,
			Model:              *model,
			HypothesisTemplate: *hypothesisTemplate,
		})
	case shared.BackendHosted:
		backend, err = hosted.New(hosted.Config{
			BaseURL:            *hostedURL,
			Token:              *hostedToken,
			Model:              *model,
			EmbedModel:         *embedModel,
			HypothesisTemplate: *hypothesisTemplate,
		}, log)
	default:
		log.Fatalw("Unknown backend", "backend", *backendName)
	}
	if err != nil {
		log.Fatalw("Failed loading model", "backend", *backendName, "model", *model, "error", err.Error())
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), shared.DefaultHTTPTimeout)
	im, err := inference.NewInferenceManager(startupCtx, backend, log)
	cancelStartup()
	if err != nil {
		_ = backend.Close()
		log.Fatalw("Model failed to warm up", "backend", *backendName, "model", *model, "error", err.Error())
	}
	defer im.ShutDown()

	e := routers.NewServer(im, log, routers.ServerConfig{
		MetricsAPIKey: *metricsAPIKey,
		Debug:         *debug,
	})

	go func() {
		log.Infow("Listening", "addr", *addr)
		if err := e.Start(*addr); err != nil && err != http.ErrServerClosed {
			log.Fatalw("Server failed", "error", err.Error())
		}
	}()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("Shutting down")
	im.MarkNotReady()

	ctx, cancel := context.WithTimeout(context.Background(), shared.DefaultShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Errorw("Failed graceful shutdown", "error", err.Error())
	}
}
