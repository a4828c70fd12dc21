package config

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "ephyscli/internal/errors"
)

// EnvPrefix is the prefix for every environment override, e.g.
// MEMBRANE_PIPELINE_STEP_MV or MEMBRANE_OUTPUT_DRIVER. Keys are derived
// from field names only, so bare variables such as PATH are never read.
const EnvPrefix = "MEMBRANE"

// Config represents the complete pipeline configuration
type Config struct {
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// InputConfig describes the measurement table to read
type InputConfig struct {
	Path      string `yaml:"path" split_words:"true"`
	Delimiter string `yaml:"delimiter" split_words:"true" validate:"required"`
	Sheet     string `yaml:"sheet" split_words:"true"`
}

// OutputConfig controls where and how artifacts are written
type OutputConfig struct {
	// Dir defaults to the directory of the input file when empty.
	Dir      string       `yaml:"dir" split_words:"true"`
	Driver   string       `yaml:"driver" split_words:"true" validate:"oneof=fs s3 memory"`
	Prefix   string       `yaml:"prefix" split_words:"true"`
	Workbook bool         `yaml:"workbook" split_words:"true"`
	Suffixes SuffixConfig `yaml:"suffixes" split_words:"true"`
	S3       S3Config     `yaml:"s3" split_words:"true"`
}

// SuffixConfig holds the file name suffix for each artifact
type SuffixConfig struct {
	PerCell      string `yaml:"per_cell" split_words:"true" validate:"required"`
	PerCellDesc  string `yaml:"per_cell_desc" split_words:"true" validate:"required"`
	PerMouse     string `yaml:"per_mouse" split_words:"true" validate:"required"`
	PerMouseDesc string `yaml:"per_mouse_desc" split_words:"true" validate:"required"`
	Workbook     string `yaml:"workbook" split_words:"true" validate:"required"`
}

// S3Config is used when Output.Driver is "s3"
type S3Config struct {
	Bucket    string `yaml:"bucket" split_words:"true"`
	Region    string `yaml:"region" split_words:"true"`
	Endpoint  string `yaml:"endpoint" split_words:"true" validate:"omitempty,url"`
	PathStyle bool   `yaml:"path_style" split_words:"true"`
}

// PipelineConfig holds the analysis parameters
type PipelineConfig struct {
	StepMV       float64       `yaml:"step_mv" split_words:"true"`
	Unclassified string        `yaml:"unclassified" split_words:"true" validate:"oneof=exclude fail separate"`
	Markers      MarkersConfig `yaml:"markers" split_words:"true"`
}

// MarkersConfig holds the substrings used to recognise genotype and treatment
type MarkersConfig struct {
	WildType string `yaml:"wild_type" split_words:"true" validate:"required"`
	Knockout string `yaml:"knockout" split_words:"true" validate:"required"`
	Vehicle  string `yaml:"vehicle" split_words:"true" validate:"required"`
	Drug     string `yaml:"drug" split_words:"true" validate:"required"`
}

// ArchiveConfig enables recording of runs in a SQL database
type ArchiveConfig struct {
	Driver string `yaml:"driver" split_words:"true" validate:"omitempty,oneof=sqlite postgres"`
	DSN    string `yaml:"dsn" split_words:"true" validate:"required_with=Driver"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" split_words:"true" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" split_words:"true" validate:"oneof=json text"`
	Output   string `yaml:"output" split_words:"true" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" split_words:"true"`
}

// TelemetryConfig points the trace and metric exporters at files.
// Empty paths disable the respective exporter.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" split_words:"true" validate:"required"`
	TraceFile   string `yaml:"trace_file" split_words:"true"`
	MetricsFile string `yaml:"metrics_file" split_words:"true"`
}

// Load builds the configuration from defaults, an optional YAML file and
// MEMBRANE_* environment variables, in increasing order of precedence.
// An empty path falls back to MEMBRANE_CONFIG.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays the YAML document at path onto cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.NewConfigError("failed to read config file", err).WithContext("path", path)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return apperrors.NewConfigError("failed to parse config file", err).WithContext("path", path)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the rules that span sections
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.NewConfigError("invalid configuration", err)
	}

	if c.Output.Driver == "s3" && c.Output.S3.Bucket == "" {
		return apperrors.NewConfigError("output.s3.bucket is required for the s3 driver", nil)
	}
	if c.Output.Driver == "fs" && strings.Contains(c.Output.Prefix, "..") {
		return apperrors.NewConfigError("output.prefix must not escape the output directory", nil).
			WithContext("prefix", c.Output.Prefix)
	}
	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.FilePath == "" {
		return apperrors.NewConfigError("logging.file_path is required when logging to a file", nil)
	}

	if d := c.Input.Delimiter; d != `\t` && utf8.RuneCountInString(d) != 1 {
		return apperrors.NewConfigError("input.delimiter must be a single character", nil).
			WithContext("delimiter", d)
	}

	s := c.Output.Suffixes
	seen := make(map[string]bool, 5)
	for _, suffix := range []string{s.PerCell, s.PerCellDesc, s.PerMouse, s.PerMouseDesc, s.Workbook} {
		if seen[suffix] {
			return apperrors.NewConfigError(fmt.Sprintf("duplicate output suffix %q", suffix), nil)
		}
		seen[suffix] = true
	}

	m := c.Pipeline.Markers
	if m.WildType == m.Knockout || m.Vehicle == m.Drug {
		return apperrors.NewConfigError("genotype and treatment markers must be distinct", nil)
	}
	return nil
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Input: InputConfig{
			Delimiter: ",",
		},
		Output: OutputConfig{
			Driver: "fs",
			Suffixes: SuffixConfig{
				PerCell:      "_per_cell",
				PerCellDesc:  "_per_cell_desc",
				PerMouse:     "_per_mouse",
				PerMouseDesc: "_per_mouse_desc",
				Workbook:     "_summary",
			},
		},
		Pipeline: PipelineConfig{
			StepMV:       -10,
			Unclassified: "exclude",
			Markers: MarkersConfig{
				WildType: "W",
				Knockout: "K",
				Vehicle:  "vehicle",
				Drug:     "rhosin",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "console",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "membrane-props",
		},
	}
}
