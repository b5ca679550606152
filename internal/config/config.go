// Package config loads WasteNot configuration from built-in defaults, an
// optional YAML file and WASTENOT_* environment variables, in that order of
// precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Version is the release version, overridden at build time via -ldflags.
var Version = "0.1.0-dev"

// PathEnvVar names the optional YAML config file.
const PathEnvVar = "WASTENOT_CONFIG"

const envPrefix = "WASTENOT_"

// Config holds all WasteNot configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Model    ModelConfig    `koanf:"model"`
	Catalog  CatalogConfig  `koanf:"catalog"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Feedback FeedbackConfig `koanf:"feedback"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes" validate:"gt=0"`
	MaxImages       int           `koanf:"max_images" validate:"gt=0"`
	// FeedbackRate is the per-IP limit on feedback submissions per minute.
	// 0 disables rate limiting.
	FeedbackRate int `koanf:"feedback_rate" validate:"gte=0"`
}

// ModelConfig holds classifier settings.
type ModelConfig struct {
	Path                string  `koanf:"path" validate:"required"`
	LibraryPath         string  `koanf:"library_path"`
	ConfidenceThreshold float64 `koanf:"confidence_threshold" validate:"gte=0,lte=1"`
	Normalization       string  `koanf:"normalization" validate:"oneof=raw unit imagenet"`
	Interpolation       string  `koanf:"interpolation" validate:"oneof=nearest bilinear catmullrom"`
	Logits              bool    `koanf:"logits"`
	Workers             int     `koanf:"workers" validate:"gt=0"`
	IntraOpThreads      int     `koanf:"intra_op_threads" validate:"gte=0"`
}

// CatalogConfig holds recipe catalog settings.
type CatalogConfig struct {
	// Path to a YAML catalog. Empty uses the built-in catalog.
	Path           string `koanf:"path"`
	ImageDir       string `koanf:"image_dir"`
	ImageURLPrefix string `koanf:"image_url_prefix" validate:"required,startswith=/"`
	Placeholder    string `koanf:"placeholder" validate:"omitempty,url"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
	// Addr runs a separate metrics listener. Empty mounts /metrics on the
	// main router.
	Addr           string `koanf:"addr"`
	Namespace      string `koanf:"namespace" validate:"required"`
	ProcessMetrics bool   `koanf:"process_metrics"`
}

// FeedbackConfig holds feedback ledger and comment log settings.
type FeedbackConfig struct {
	MaxCommentLength int `koanf:"max_comment_length" validate:"gt=0"`

	// Log is "stdout", "none", or a file path.
	Log          string        `koanf:"log" validate:"required"`
	MaxLogBytes  int64         `koanf:"max_log_bytes" validate:"gte=0"`
	Verbosity    string        `koanf:"verbosity" validate:"oneof=minimal standard"`
	WebhookURL   string        `koanf:"webhook_url" validate:"omitempty,url"`
	WebhookToken string        `koanf:"webhook_token"`
	BatchSize    int           `koanf:"batch_size" validate:"gt=0"`
	FlushEvery   time.Duration `koanf:"flush_interval" validate:"gt=0"`
	BufferSize   int           `koanf:"buffer_size" validate:"gt=0"`
}

// LogConfig holds process logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=json text console"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  32 << 20,
			MaxImages:       20,
			FeedbackRate:    30,
		},
		Model: ModelConfig{
			Path:                "models/ingredient_classifier.onnx",
			ConfidenceThreshold: 0.6,
			Normalization:       "raw",
			Interpolation:       "nearest",
			Workers:             4,
		},
		Catalog: CatalogConfig{
			ImageDir:       "static/recipe_images",
			ImageURLPrefix: "/recipe-images/",
			Placeholder:    "https://via.placeholder.com/320x200?text=Image+Unavailable",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Addr:      ":8000",
			Namespace: "wastenot",
		},
		Feedback: FeedbackConfig{
			MaxCommentLength: 500,
			Log:              "stdout",
			Verbosity:        "standard",
			BatchSize:        20,
			FlushEvery:       5 * time.Second,
			BufferSize:       256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// envMappings maps environment variables (lowercased) to config keys.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	"wastenot_addr":                   "server.addr",
	"wastenot_request_timeout":        "server.request_timeout",
	"wastenot_shutdown_timeout":       "server.shutdown_timeout",
	"wastenot_max_upload_bytes":       "server.max_upload_bytes",
	"wastenot_max_images":             "server.max_images",
	"wastenot_feedback_rate":          "server.feedback_rate",
	"wastenot_model_path":             "model.path",
	"wastenot_ort_library":            "model.library_path",
	"wastenot_confidence_threshold":   "model.confidence_threshold",
	"wastenot_normalization":          "model.normalization",
	"wastenot_interpolation":          "model.interpolation",
	"wastenot_model_logits":           "model.logits",
	"wastenot_workers":                "model.workers",
	"wastenot_intra_op_threads":       "model.intra_op_threads",
	"wastenot_catalog_path":           "catalog.path",
	"wastenot_recipe_image_dir":       "catalog.image_dir",
	"wastenot_placeholder_image":      "catalog.placeholder",
	"wastenot_metrics_enabled":        "metrics.enabled",
	"wastenot_metrics_addr":           "metrics.addr",
	"wastenot_metrics_namespace":      "metrics.namespace",
	"wastenot_process_metrics":        "metrics.process_metrics",
	"wastenot_max_comment_length":     "feedback.max_comment_length",
	"wastenot_feedback_log":           "feedback.log",
	"wastenot_feedback_log_bytes":     "feedback.max_log_bytes",
	"wastenot_feedback_verbosity":     "feedback.verbosity",
	"wastenot_feedback_webhook":       "feedback.webhook_url",
	"wastenot_feedback_webhook_token": "feedback.webhook_token",
	"wastenot_log_level":              "log.level",
	"wastenot_log_format":             "log.format",
}

// envVarFor returns the environment variable bound to a config key, for
// error messages.
func envVarFor(key string) string {
	for envKey, k := range envMappings {
		if k == key {
			return strings.ToUpper(envKey)
		}
	}
	return ""
}

func envTransform(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load layers defaults, the YAML file named by WASTENOT_CONFIG (if set) and
// the environment, then validates the result.
func Load() (Config, error) {
	return load(os.Getenv(PathEnvVar))
}

func load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return Config{}, fmt.Errorf("config: load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

// newValidator reports fields by their koanf key.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get("koanf")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and that the model file exists. All
// problems are reported together.
func (c Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	if c.Model.Path != "" {
		if _, err := os.Stat(c.Model.Path); err != nil {
			errs = append(errs, fmt.Errorf("config: model file %s (WASTENOT_MODEL_PATH): %w", c.Model.Path, err))
		}
	}

	return errors.Join(errs...)
}

// describe turns a validator error into a message naming the config key and
// its environment variable.
func describe(fe validator.FieldError) error {
	key := strings.TrimPrefix(fe.Namespace(), "Config.")
	where := key
	if v := envVarFor(key); v != "" {
		where = fmt.Sprintf("%s (%s)", key, v)
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("config: %s is required", where)
	case "oneof":
		return fmt.Errorf("config: %s must be one of [%s], got %q", where, fe.Param(), fe.Value())
	case "url":
		return fmt.Errorf("config: %s must be a URL, got %q", where, fe.Value())
	default:
		return fmt.Errorf("config: %s must satisfy %s %s, got %v", where, fe.Tag(), fe.Param(), fe.Value())
	}
}
