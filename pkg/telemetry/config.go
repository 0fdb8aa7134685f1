package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config contains the telemetry configuration for the actuator.
type Config struct {
	ServiceName    string `json:"service_name" yaml:"service_name" validate:"required"`
	ServiceVersion string `json:"service_version" yaml:"service_version" validate:"required"`
	Environment    string `json:"environment" yaml:"environment"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal"`
	// Format is console or json.
	Format string `json:"format" yaml:"format" validate:"oneof=console json"`
	// Output is stdout, stderr or a file path.
	Output       string `json:"output" yaml:"output"`
	EnableCaller bool   `json:"enable_caller" yaml:"enable_caller"`

	// Sampling keeps SamplingInitial messages per second, then every
	// SamplingThereafter-th one.
	EnableSampling     bool `json:"enable_sampling" yaml:"enable_sampling"`
	SamplingInitial    int  `json:"sampling_initial" yaml:"sampling_initial" validate:"gte=0"`
	SamplingThereafter int  `json:"sampling_thereafter" yaml:"sampling_thereafter" validate:"gte=0"`

	// TimeFormat is rfc3339, unix or unixms.
	TimeFormat string `json:"time_format" yaml:"time_format" validate:"omitempty,oneof=rfc3339 unix unixms"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Exporter is otlp, stdout or none.
	Exporter string `json:"exporter" yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`
	// Endpoint is the OTLP gRPC endpoint, e.g. localhost:4317.
	Endpoint           string            `json:"endpoint" yaml:"endpoint" validate:"required_if=Exporter otlp"`
	SamplingRate       float64           `json:"sampling_rate" yaml:"sampling_rate" validate:"gte=0,lte=1"`
	MaxExportBatchSize int               `json:"max_export_batch_size" yaml:"max_export_batch_size"`
	ExportTimeout      time.Duration     `json:"export_timeout" yaml:"export_timeout"`
	Headers            map[string]string `json:"headers" yaml:"headers"`
	Insecure           bool              `json:"insecure" yaml:"insecure"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// ListenAddress serves a standalone metrics endpoint when set.
	ListenAddress string `json:"listen_address" yaml:"listen_address"`
	Path          string `json:"path" yaml:"path" validate:"required_if=Enabled true"`
	Namespace     string `json:"namespace" yaml:"namespace"`
	// DefaultHistogramBuckets are latency buckets in seconds.
	DefaultHistogramBuckets []float64 `json:"default_histogram_buckets" yaml:"default_histogram_buckets"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "actuator",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stderr",
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            map[string]string{},
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			Path:                    "/metrics",
			Namespace:               "actuator",
			DefaultHistogramBuckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	}
}

// ProductionConfig logs sampled JSON and ships a tenth of all traces over OTLP.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.Endpoint = "localhost:4317"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	return cfg
}

// DevelopmentConfig logs at debug level and prints traces to stdout.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	return cfg
}

var configValidator = validator.New()

// fieldLabels names fields in validation errors.
var fieldLabels = map[string]string{
	"Config.ServiceName":          "service name",
	"Config.ServiceVersion":       "service version",
	"Config.Logging.Level":        "log level",
	"Config.Logging.Format":       "log format",
	"Config.Logging.TimeFormat":   "log time format",
	"Config.Tracing.Exporter":     "trace exporter",
	"Config.Tracing.Endpoint":     "trace endpoint",
	"Config.Tracing.SamplingRate": "trace sampling rate",
	"Config.Metrics.Path":         "metrics path",
}

// Validate checks the configuration against its field constraints. The
// first failing field is reported, e.g. `invalid log level "loud"`.
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	label, ok := fieldLabels[fe.Namespace()]
	if !ok {
		label = fe.Namespace()
	}
	if fe.Tag() == "required" || fe.Tag() == "required_if" {
		return fmt.Errorf("%s is required", label)
	}
	return fmt.Errorf("invalid %s %v (%s %s)", label, fe.Value(), fe.Tag(), fe.Param())
}
