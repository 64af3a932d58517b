package internal

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Grading GradingConfig     `yaml:"grading"`
	Viewer  ViewerConfig      `yaml:"viewer"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Grading.Validate(); err != nil {
		return err
	}
	return c.Viewer.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatText
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatText, LogFormatJSON)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds the viewer's HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// GradingConfig controls submission matching and scoring.
//
// Aliases maps a canonical reference filename to the ordered list of
// alternative names tried when the canonical one is not found.
type GradingConfig struct {
	Tolerance        float64             `yaml:"tolerance"`
	Workers          int                 `yaml:"workers"`
	IgnoreDirs       []string            `yaml:"ignore_dirs"`
	Aliases          map[string][]string `yaml:"aliases"`
	ErrorImageDir    string              `yaml:"error_image_dir"`
	ErrorImageSuffix string              `yaml:"error_image_suffix"`
	WriteErrorImages bool                `yaml:"write_error_images"`
}

// Validate validates the grading configuration.
func (c *GradingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Tolerance, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
		validation.Field(&c.ErrorImageDir, validation.Required),
		validation.Field(&c.ErrorImageSuffix, validation.Required),
	)
}

// ViewerConfig controls the interactive inspection viewer.
type ViewerConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	PlaceholderWidth  int           `yaml:"placeholder_width"`
	PlaceholderHeight int           `yaml:"placeholder_height"`
	MaxZoom           int           `yaml:"max_zoom"`
	// OpenCommand overrides the platform file browser (xdg-open, open, explorer).
	OpenCommand string `yaml:"open_command"`
	Watch       bool   `yaml:"watch"`
}

// Validate validates the viewer configuration.
func (c *ViewerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PollInterval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.PlaceholderWidth, validation.Required, validation.Min(16)),
		validation.Field(&c.PlaceholderHeight, validation.Required, validation.Min(16)),
		validation.Field(&c.MaxZoom, validation.Required, validation.Min(1)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatText,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 8080,
			},
		},
		Grading: GradingConfig{
			Tolerance:  1,
			Workers:    runtime.NumCPU(),
			IgnoreDirs: []string{".git", "handouts", "__MACOSX"},
			Aliases: map[string][]string{
				"hw_1_6_alpha_circles.png": {"hw_1_6_alpha_cirlces.png"},
			},
			ErrorImageDir:    "__error_images",
			ErrorImageSuffix: ".error.png",
		},
		Viewer: ViewerConfig{
			PollInterval:      50 * time.Millisecond,
			PlaceholderWidth:  640,
			PlaceholderHeight: 480,
			MaxZoom:           16,
			Watch:             true,
		},
	}
}
