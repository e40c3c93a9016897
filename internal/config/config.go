// Package config provides configuration loading and validation for the pipeline and its CLI.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/jonathan/echo-pipeline/internal/types"
)

// IterationPlaceholder is replaced by the iteration id in the formatter naming convention
const IterationPlaceholder = "{iteration}"

// Config is the full pipeline configuration, loaded from YAML (JSON is accepted as YAML).
// Sections missing from the file keep their defaults.
type Config struct {
	Generator   GeneratorConfig   `yaml:"generator" json:"generator"`
	Transformer TransformerConfig `yaml:"transformer" json:"transformer"`
	Validator   ValidatorConfig   `yaml:"validator" json:"validator"`
	Formatter   FormatterConfig   `yaml:"formatter" json:"formatter"`
	Harness     HarnessConfig     `yaml:"harness" json:"harness"`
	Monitor     MonitorConfig     `yaml:"monitor" json:"monitor"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	DatabaseURL string            `yaml:"database_url,omitempty" json:"database_url,omitempty"` // PostgreSQL connection URL (optional)
}

// GeneratorConfig configures the content provider
type GeneratorConfig struct {
	Provider       string  `yaml:"provider" json:"provider" validate:"required,oneof=stub gemini openai"`
	Model          string  `yaml:"model" json:"model" validate:"required"`
	MaxTokens      int     `yaml:"max_tokens" json:"max_tokens" validate:"gte=1"`
	Temperature    float64 `yaml:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds" validate:"gte=1"`
	APIKey         string  `yaml:"api_key,omitempty" json:"api_key,omitempty"` // Usually supplied by flag or environment
}

// Timeout returns the provider call timeout
func (g GeneratorConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// TransformerConfig lists the formats every run is rendered into
type TransformerConfig struct {
	Formats []types.Format `yaml:"formats" json:"formats" validate:"min=1,dive,oneof=markdown html jsonld"`
}

// Weights are the per-criterion weights of the quality score; they must sum to 1
type Weights struct {
	Length   float64 `yaml:"length" json:"length" validate:"gte=0,lte=1"`
	Validity float64 `yaml:"validity" json:"validity" validate:"gte=0,lte=1"`
	Keywords float64 `yaml:"keywords" json:"keywords" validate:"gte=0,lte=1"`
}

// Sum returns the total weight
func (w Weights) Sum() float64 {
	return w.Length + w.Validity + w.Keywords
}

// LengthTargets maps each length class to a target word count
type LengthTargets struct {
	Short  int `yaml:"short" json:"short" validate:"gte=1"`
	Medium int `yaml:"medium" json:"medium" validate:"gte=1"`
	Long   int `yaml:"long" json:"long" validate:"gte=1"`
}

// For returns the target word count for a length class (0 if unknown)
func (l LengthTargets) For(length types.Length) int {
	switch length {
	case types.LengthShort:
		return l.Short
	case types.LengthMedium:
		return l.Medium
	case types.LengthLong:
		return l.Long
	default:
		return 0
	}
}

// ValidatorConfig configures quality scoring and acceptance thresholds
type ValidatorConfig struct {
	QualityThreshold     float64       `yaml:"quality_threshold" json:"quality_threshold" validate:"gte=0,lte=1"`
	ConsistencyThreshold float64       `yaml:"consistency_threshold" json:"consistency_threshold" validate:"gte=0,lte=1"`
	Weights              Weights       `yaml:"weights" json:"weights"`
	LengthTargets        LengthTargets `yaml:"length_targets" json:"length_targets"`
}

// weightTolerance is how far the weight sum may drift from 1
const weightTolerance = 1e-9

// Check verifies thresholds, weights and length targets without struct tags,
// so a ValidatorConfig built in code is held to the same rules as a loaded file.
func (v ValidatorConfig) Check() error {
	if v.QualityThreshold < 0 || v.QualityThreshold > 1 {
		return &ConfigError{Field: "validator.quality_threshold", Message: "must be between 0 and 1"}
	}
	if v.ConsistencyThreshold < 0 || v.ConsistencyThreshold > 1 {
		return &ConfigError{Field: "validator.consistency_threshold", Message: "must be between 0 and 1"}
	}
	if v.Weights.Length < 0 || v.Weights.Validity < 0 || v.Weights.Keywords < 0 {
		return &ConfigError{Field: "validator.weights", Message: "weights must be non-negative"}
	}
	if sum := v.Weights.Sum(); math.Abs(sum-1) > weightTolerance {
		return &ConfigError{Field: "validator.weights", Message: fmt.Sprintf("weights must sum to 1, got %g", sum)}
	}
	if v.LengthTargets.Short < 1 || v.LengthTargets.Medium < 1 || v.LengthTargets.Long < 1 {
		return &ConfigError{Field: "validator.length_targets", Message: "targets must be positive"}
	}
	return nil
}

// FormatterConfig configures where accepted artifacts are written
type FormatterConfig struct {
	OutputDir        string `yaml:"output_dir" json:"output_dir" validate:"required"`
	NamingConvention string `yaml:"naming_convention" json:"naming_convention" validate:"required"`
}

// DirName expands the naming convention for an iteration id
func (f FormatterConfig) DirName(iterationID string) string {
	return strings.ReplaceAll(f.NamingConvention, IterationPlaceholder, iterationID)
}

// TimeoutsConfig holds per-test-type batch timeouts in seconds
type TimeoutsConfig struct {
	Unit        int `yaml:"unit" json:"unit" validate:"gte=1"`
	Integration int `yaml:"integration" json:"integration" validate:"gte=1"`
	Performance int `yaml:"performance" json:"performance" validate:"gte=1"`
	Quality     int `yaml:"quality" json:"quality" validate:"gte=1"`
}

// For returns the batch timeout for a test type
func (t TimeoutsConfig) For(testType types.TestType) time.Duration {
	var seconds int
	switch testType {
	case types.TestUnit:
		seconds = t.Unit
	case types.TestIntegration:
		seconds = t.Integration
	case types.TestPerformance:
		seconds = t.Performance
	case types.TestQuality:
		seconds = t.Quality
	}
	return time.Duration(seconds) * time.Second
}

// HarnessConfig configures the test harness
type HarnessConfig struct {
	PerformanceIterations int            `yaml:"performance_iterations" json:"performance_iterations" validate:"gte=1"`
	Workers               int            `yaml:"workers" json:"workers" validate:"gte=0"` // 0 means GOMAXPROCS
	ReportPath            string         `yaml:"report_path" json:"report_path" validate:"required"`
	MinPassRate           float64        `yaml:"min_pass_rate" json:"min_pass_rate" validate:"gte=0,lte=1"`
	Timeouts              TimeoutsConfig `yaml:"timeouts" json:"timeouts"`
}

// MonitorConfig configures execution monitoring
type MonitorConfig struct {
	MetricsDir string `yaml:"metrics_dir" json:"metrics_dir" validate:"required"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Generator: GeneratorConfig{
			Provider:       "stub",
			Model:          "default",
			MaxTokens:      1000,
			Temperature:    0.7,
			TimeoutSeconds: 30,
		},
		Transformer: TransformerConfig{
			Formats: append([]types.Format(nil), types.AllFormats...),
		},
		Validator: ValidatorConfig{
			QualityThreshold:     0.8,
			ConsistencyThreshold: 0.7,
			Weights:              Weights{Length: 0.4, Validity: 0.3, Keywords: 0.3},
			LengthTargets:        LengthTargets{Short: 200, Medium: 500, Long: 1000},
		},
		Formatter: FormatterConfig{
			OutputDir:        "content/",
			NamingConvention: "iteration-" + IterationPlaceholder,
		},
		Harness: HarnessConfig{
			PerformanceIterations: 5,
			ReportPath:            "reports/test_report.json",
			MinPassRate:           1.0,
			Timeouts:              TimeoutsConfig{Unit: 30, Integration: 60, Performance: 300, Quality: 120},
		},
		Monitor: MonitorConfig{
			MetricsDir: "metrics/",
		},
		Server: defaultServerConfig(),
	}
}

// LoadConfig loads configuration from a YAML file on top of DefaultConfig.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration on top of DefaultConfig
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %s", yaml.FormatError(err, false, true))
	}
	return cfg, nil
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the configuration has valid values.
// The first problem found is returned as *ConfigError.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := fe.Namespace()
			if _, rest, ok := strings.Cut(field, "."); ok {
				field = rest
			}
			return &ConfigError{Field: field, Message: describeTag(fe)}
		}
		return &ConfigError{Field: "(root)", Message: err.Error()}
	}

	if err := c.Validator.Check(); err != nil {
		return err
	}

	if !strings.Contains(c.Formatter.NamingConvention, IterationPlaceholder) {
		return &ConfigError{Field: "formatter.naming_convention", Message: "must contain " + IterationPlaceholder}
	}
	name := c.Formatter.DirName("x")
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return &ConfigError{Field: "formatter.naming_convention", Message: "must expand to a single path component"}
	}

	if err := c.Server.Auth.check(); err != nil {
		return err
	}

	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// MergeWithDefaults returns a copy with zero-valued fields filled from defaults.
// Workers and DatabaseURL are left as they are since their zero values are meaningful.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// Generator
	if result.Generator.Provider == "" {
		result.Generator.Provider = defaults.Generator.Provider
	}
	if result.Generator.Model == "" {
		result.Generator.Model = defaults.Generator.Model
	}
	if result.Generator.MaxTokens == 0 {
		result.Generator.MaxTokens = defaults.Generator.MaxTokens
	}
	if result.Generator.Temperature == 0 {
		result.Generator.Temperature = defaults.Generator.Temperature
	}
	if result.Generator.TimeoutSeconds == 0 {
		result.Generator.TimeoutSeconds = defaults.Generator.TimeoutSeconds
	}
	if result.Generator.APIKey == "" {
		result.Generator.APIKey = defaults.Generator.APIKey
	}

	// Transformer
	if len(result.Transformer.Formats) == 0 {
		result.Transformer.Formats = append([]types.Format(nil), defaults.Transformer.Formats...)
	}

	// Validator
	if result.Validator.QualityThreshold == 0 {
		result.Validator.QualityThreshold = defaults.Validator.QualityThreshold
	}
	if result.Validator.ConsistencyThreshold == 0 {
		result.Validator.ConsistencyThreshold = defaults.Validator.ConsistencyThreshold
	}
	if result.Validator.Weights == (Weights{}) {
		result.Validator.Weights = defaults.Validator.Weights
	}
	if result.Validator.LengthTargets.Short == 0 {
		result.Validator.LengthTargets.Short = defaults.Validator.LengthTargets.Short
	}
	if result.Validator.LengthTargets.Medium == 0 {
		result.Validator.LengthTargets.Medium = defaults.Validator.LengthTargets.Medium
	}
	if result.Validator.LengthTargets.Long == 0 {
		result.Validator.LengthTargets.Long = defaults.Validator.LengthTargets.Long
	}

	// Formatter
	if result.Formatter.OutputDir == "" {
		result.Formatter.OutputDir = defaults.Formatter.OutputDir
	}
	if result.Formatter.NamingConvention == "" {
		result.Formatter.NamingConvention = defaults.Formatter.NamingConvention
	}

	// Harness
	if result.Harness.PerformanceIterations == 0 {
		result.Harness.PerformanceIterations = defaults.Harness.PerformanceIterations
	}
	if result.Harness.ReportPath == "" {
		result.Harness.ReportPath = defaults.Harness.ReportPath
	}
	if result.Harness.MinPassRate == 0 {
		result.Harness.MinPassRate = defaults.Harness.MinPassRate
	}
	if result.Harness.Timeouts.Unit == 0 {
		result.Harness.Timeouts.Unit = defaults.Harness.Timeouts.Unit
	}
	if result.Harness.Timeouts.Integration == 0 {
		result.Harness.Timeouts.Integration = defaults.Harness.Timeouts.Integration
	}
	if result.Harness.Timeouts.Performance == 0 {
		result.Harness.Timeouts.Performance = defaults.Harness.Timeouts.Performance
	}
	if result.Harness.Timeouts.Quality == 0 {
		result.Harness.Timeouts.Quality = defaults.Harness.Timeouts.Quality
	}

	// Monitor
	if result.Monitor.MetricsDir == "" {
		result.Monitor.MetricsDir = defaults.Monitor.MetricsDir
	}

	mergeServer(&result.Server, defaults.Server)

	return result
}
