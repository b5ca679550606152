package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crimson-sun/wastenot/internal/api"
	"github.com/crimson-sun/wastenot/internal/catalog"
	"github.com/crimson-sun/wastenot/internal/config"
	"github.com/crimson-sun/wastenot/internal/engine"
	"github.com/crimson-sun/wastenot/internal/engine/classifier"
	"github.com/crimson-sun/wastenot/internal/engine/inference"
	"github.com/crimson-sun/wastenot/internal/engine/preprocess"
	"github.com/crimson-sun/wastenot/internal/feedback"
	"github.com/crimson-sun/wastenot/internal/logging"
	"github.com/crimson-sun/wastenot/internal/metrics"
	"github.com/crimson-sun/wastenot/internal/model"
	"github.com/crimson-sun/wastenot/internal/output"
	"github.com/crimson-sun/wastenot/internal/output/async"
	"github.com/crimson-sun/wastenot/internal/output/file"
	"github.com/crimson-sun/wastenot/internal/output/multi"
	"github.com/crimson-sun/wastenot/internal/output/stdout"
	"github.com/crimson-sun/wastenot/internal/output/webhook"
	"github.com/crimson-sun/wastenot/internal/pipeline"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println("wastenot", config.Version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wastenot: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	if err := run(cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	slog.Info("catalog loaded", "recipes", cat.Len())

	// Without the model the service has nothing to serve.
	m, err := inference.NewONNX(inference.ONNXConfig{
		ModelPath:      cfg.Model.Path,
		LibraryPath:    cfg.Model.LibraryPath,
		Classes:        len(model.Vocabulary),
		IntraOpThreads: cfg.Model.IntraOpThreads,
	})
	if err != nil {
		return err
	}

	pre, err := preprocess.New(inference.InputConfig(m,
		preprocess.Normalization(cfg.Model.Normalization),
		preprocess.Interpolation(cfg.Model.Interpolation),
	))
	if err != nil {
		m.Close()
		return err
	}
	slog.Info("model loaded", "path", cfg.Model.Path, "input_size", m.InputSize(), "layout", m.Layout().String())

	cls := classifier.New(cfg.Model.ConfidenceThreshold)
	cls.Logits = cfg.Model.Logits

	var sink metrics.Sink = metrics.Nop{}
	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		opts := []metrics.Option{metrics.WithNamespace(cfg.Metrics.Namespace)}
		if cfg.Metrics.ProcessMetrics {
			opts = append(opts, metrics.WithProcessMetrics())
		}
		recorder = metrics.NewRecorder(opts...)
		sink = recorder
	}

	eng := engine.New(pre, m, cls, sink, engine.WithWorkers(cfg.Model.Workers))
	defer eng.Close()

	out, err := feedbackOutput(cfg.Feedback)
	if err != nil {
		return err
	}
	if out != nil {
		defer out.Close()
	}
	ledger := feedback.New(sink, out, feedback.WithMaxCommentLength(cfg.Feedback.MaxCommentLength))

	p := pipeline.New(eng, cat)

	render := api.DefaultRenderOptions(cfg.Catalog.ImageDir)
	render.ImageURLPrefix = cfg.Catalog.ImageURLPrefix
	if cfg.Catalog.Placeholder != "" {
		render.Placeholder = cfg.Catalog.Placeholder
	}

	apiOpts := []api.Option{
		api.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		api.WithMaxImages(cfg.Server.MaxImages),
		api.WithRequestTimeout(cfg.Server.RequestTimeout),
		api.WithFeedbackRate(cfg.Server.FeedbackRate),
	}
	if recorder != nil && cfg.Metrics.Addr == "" {
		apiOpts = append(apiOpts, api.WithMetricsHandler(recorder.Handler()))
	}
	srv := api.New(eng, p, ledger, cat, render, apiOpts...)

	servers := []*http.Server{{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if recorder != nil && cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", recorder.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, len(servers))
	for _, s := range servers {
		go func(s *http.Server) {
			slog.Info("listening", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", s.Addr, err)
			}
		}(s)
	}

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown", "addr", s.Addr, "error", err)
		}
	}
	return runErr
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

// feedbackOutput builds the comment log destinations. Returns nil when
// every destination is disabled.
func feedbackOutput(cfg config.FeedbackConfig) (output.Output, error) {
	verbosity := output.ParseVerbosity(cfg.Verbosity)

	var outs []output.Output
	switch cfg.Log {
	case "none":
	case "stdout":
		outs = append(outs, stdout.New(verbosity, false))
	default:
		var opts []file.Option
		if cfg.MaxLogBytes > 0 {
			opts = append(opts, file.WithMaxSize(cfg.MaxLogBytes))
		}
		f, err := file.New(cfg.Log, verbosity, opts...)
		if err != nil {
			return nil, err
		}
		outs = append(outs, f)
	}
	if cfg.WebhookURL != "" {
		outs = append(outs, webhook.New(cfg.WebhookURL,
			webhook.WithBatchSize(cfg.BatchSize),
			webhook.WithFlushInterval(cfg.FlushEvery),
			webhook.WithVerbosity(verbosity),
			webhook.WithBearerToken(cfg.WebhookToken),
		))
	}
	if len(outs) == 0 {
		return nil, nil
	}

	return async.New(multi.New(outs...),
		async.WithBufferSize(cfg.BufferSize),
		async.WithDropOnFull(),
		async.WithOnError(func(err error) { slog.Warn("feedback log write failed", "error", err) }),
	), nil
}
