package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pdfmill/classifier"
)

// Config holds the full pdfmill configuration.
type Config struct {
	Source    SourceConfig `yaml:"source"`
	OutputDir string       `yaml:"output_dir"`
	ModelPath string       `yaml:"model_path"`

	Threshold      float64 `yaml:"threshold"`        // OCR routing threshold
	NumTasks       int     `yaml:"num_tasks"`        // shard count
	Workers        int     `yaml:"workers"`          // concurrent shards per stage
	PDFLimit       int     `yaml:"pdf_limit"`        // 0 = whole corpus
	TimeoutSeconds int     `yaml:"timeout_seconds"`  // per-document extraction deadline
	MaxRetries     int     `yaml:"max_retries"`      // retry attempts per document
	RetryBackoffMS int     `yaml:"retry_backoff_ms"` // base backoff, doubles per attempt

	Vision VisionConfig `yaml:"vision"`

	LedgerPath string `yaml:"ledger_path"` // empty disables the run ledger
	Listen     string `yaml:"listen"`      // empty disables the status endpoint
	LogLevel   string `yaml:"log_level"`
}

// SourceConfig selects where documents come from.
type SourceConfig struct {
	Type    string `yaml:"type"`    // dir | zip | remote
	Path    string `yaml:"path"`    // dir root or zip path
	URL     string `yaml:"url"`     // remote listing URL
	Pattern string `yaml:"pattern"` // dir glob, default *.pdf
}

// VisionConfig configures the OCR inference service.
type VisionConfig struct {
	BaseURL       string  `yaml:"base_url"`
	Model         string  `yaml:"model"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float32 `yaml:"temperature"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	MaxPages      int     `yaml:"max_pages"` // 0 = all pages per document
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Source:         SourceConfig{Type: "dir", Pattern: "*.pdf"},
		OutputDir:      "output",
		ModelPath:      "model.json",
		Threshold:      classifier.DefaultThreshold,
		NumTasks:       4,
		Workers:        2,
		TimeoutSeconds: 120,
		MaxRetries:     3,
		RetryBackoffMS: 500,
		Vision: VisionConfig{
			BaseURL:       "http://localhost:8000",
			Model:         "rolmocr",
			MaxTokens:     4096,
			MaxConcurrent: 4,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig
// merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case "dir", "zip":
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for type %q", c.Source.Type)
		}
	case "remote":
		if c.Source.URL == "" {
			return fmt.Errorf("source.url is required for type remote")
		}
	default:
		return fmt.Errorf("unsupported source.type %q (use dir, zip or remote)", c.Source.Type)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.ModelPath == "" {
		return fmt.Errorf("model_path is required")
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("threshold must be in (0,1), got %v", c.Threshold)
	}
	if c.NumTasks <= 0 {
		return fmt.Errorf("num_tasks must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.PDFLimit < 0 {
		return fmt.Errorf("pdf_limit must be >= 0")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	if c.Vision.MaxConcurrent <= 0 {
		return fmt.Errorf("vision.max_concurrent must be > 0")
	}
	return nil
}

// Timeout returns the per-document extraction deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryBackoff returns the base retry delay.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}
