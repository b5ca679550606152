package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// withModel points WASTENOT_MODEL_PATH at a real temp file so the
// file-existence check passes.
func withModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WASTENOT_MODEL_PATH", path)
	return path
}

func TestLoad_Defaults(t *testing.T) {
	model := withModel(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Model.Path != model {
		t.Errorf("model path = %q, want %q", cfg.Model.Path, model)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Model.ConfidenceThreshold != 0.6 {
		t.Errorf("threshold = %v, want 0.6", cfg.Model.ConfidenceThreshold)
	}
	if cfg.Metrics.Addr != ":8000" || cfg.Metrics.Namespace != "wastenot" || !cfg.Metrics.Enabled {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
	if cfg.Server.RequestTimeout != 60*time.Second {
		t.Errorf("request timeout = %v, want 60s", cfg.Server.RequestTimeout)
	}
	if cfg.Feedback.MaxCommentLength != 500 || cfg.Feedback.Log != "stdout" {
		t.Errorf("feedback = %+v", cfg.Feedback)
	}
	if cfg.Catalog.Placeholder == "" {
		t.Error("expected default placeholder image")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	withModel(t)
	t.Setenv("WASTENOT_ADDR", ":9090")
	t.Setenv("WASTENOT_CONFIDENCE_THRESHOLD", "0.75")
	t.Setenv("WASTENOT_WORKERS", "8")
	t.Setenv("WASTENOT_MODEL_LOGITS", "true")
	t.Setenv("WASTENOT_REQUEST_TIMEOUT", "15s")
	t.Setenv("WASTENOT_METRICS_ADDR", "")
	t.Setenv("WASTENOT_LOG_FORMAT", "console")
	t.Setenv("WASTENOT_FEEDBACK_WEBHOOK", "https://hooks.example.com/feedback")
	t.Setenv("WASTENOT_FEEDBACK_WEBHOOK_TOKEN", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Model.ConfidenceThreshold != 0.75 {
		t.Errorf("threshold = %v", cfg.Model.ConfidenceThreshold)
	}
	if cfg.Model.Workers != 8 || !cfg.Model.Logits {
		t.Errorf("model = %+v", cfg.Model)
	}
	if cfg.Server.RequestTimeout != 15*time.Second {
		t.Errorf("request timeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.Metrics.Addr != "" {
		t.Errorf("metrics addr = %q, want empty", cfg.Metrics.Addr)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("log format = %q", cfg.Log.Format)
	}
	if cfg.Feedback.WebhookURL != "https://hooks.example.com/feedback" || cfg.Feedback.WebhookToken != "s3cret" {
		t.Errorf("webhook = %q token = %q", cfg.Feedback.WebhookURL, cfg.Feedback.WebhookToken)
	}
}

func TestLoad_UnmappedEnvIgnored(t *testing.T) {
	withModel(t)
	t.Setenv("WASTENOT_SERVER_ADDR", ":1")
	// Input geometry comes from the model file, not configuration.
	t.Setenv("WASTENOT_INPUT_SIZE", "300")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, unmapped variable leaked in", cfg.Server.Addr)
	}
	if _, ok := envMappings["wastenot_input_size"]; ok {
		t.Error("WASTENOT_INPUT_SIZE must not be mapped")
	}
}

func TestLoad_File(t *testing.T) {
	withModel(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "wastenot.yaml")
	yaml := `
server:
  addr: ":7000"
  max_images: 5
catalog:
  path: recipes.yaml
  image_dir: /srv/images
feedback:
  log: /var/log/wastenot/feedback.jsonl
  verbosity: minimal
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(PathEnvVar, path)
	t.Setenv("WASTENOT_MAX_IMAGES", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("addr = %q, want file value", cfg.Server.Addr)
	}
	if cfg.Server.MaxImages != 3 {
		t.Errorf("max images = %d, want env to win over file", cfg.Server.MaxImages)
	}
	if cfg.Catalog.Path != "recipes.yaml" || cfg.Catalog.ImageDir != "/srv/images" {
		t.Errorf("catalog = %+v", cfg.Catalog)
	}
	if cfg.Feedback.Verbosity != "minimal" || cfg.Log.Level != "debug" {
		t.Errorf("feedback=%+v log=%+v", cfg.Feedback, cfg.Log)
	}
	// Untouched keys keep their defaults.
	if cfg.Server.RequestTimeout != 60*time.Second {
		t.Errorf("request timeout = %v", cfg.Server.RequestTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	withModel(t)
	t.Setenv(PathEnvVar, "/nonexistent/wastenot.yaml")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	withModel(t)
	t.Setenv("WASTENOT_CONFIDENCE_THRESHOLD", "1.5")
	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "WASTENOT_CONFIDENCE_THRESHOLD") {
		t.Errorf("error should name the variable, got: %v", err)
	}
}

// --- Validation tests ---

// validConfig returns a Config with a real temp model file.
func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := Default()
	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Model.Path = path
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected nil error for valid config, got: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"threshold above one", func(c *Config) { c.Model.ConfidenceThreshold = 1.5 }, "model.confidence_threshold"},
		{"negative threshold", func(c *Config) { c.Model.ConfidenceThreshold = -0.1 }, "WASTENOT_CONFIDENCE_THRESHOLD"},
		{"bad normalization", func(c *Config) { c.Model.Normalization = "zscore" }, "model.normalization"},
		{"bad interpolation", func(c *Config) { c.Model.Interpolation = "lanczos" }, "WASTENOT_INTERPOLATION"},
		{"zero workers", func(c *Config) { c.Model.Workers = 0 }, "model.workers"},
		{"missing model file", func(c *Config) { c.Model.Path = "/nonexistent/model.onnx" }, "model file"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"zero timeout", func(c *Config) { c.Server.RequestTimeout = 0 }, "server.request_timeout"},
		{"bad verbosity", func(c *Config) { c.Feedback.Verbosity = "full" }, "feedback.verbosity"},
		{"bad webhook", func(c *Config) { c.Feedback.WebhookURL = "not a url" }, "WASTENOT_FEEDBACK_WEBHOOK"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"relative image prefix", func(c *Config) { c.Catalog.ImageURLPrefix = "images/" }, "catalog.image_url_prefix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error to mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.Model.ConfidenceThreshold = -0.1
	cfg.Feedback.Verbosity = "loud"
	cfg.Log.Level = "trace"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for multiple bad fields")
	}
	msg := err.Error()
	for _, want := range []string{"confidence_threshold", "verbosity", "log.level"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error to mention %q, got: %v", want, msg)
		}
	}
}

func TestVersion_IsSet(t *testing.T) {
	if Version == "" {
		t.Fatal("expected non-empty Version")
	}
}
