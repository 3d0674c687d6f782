// Package logger provides logger configuration options.
package logger

import (
	"fmt"
	"strings"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/kart-io/logger/option"
	"github.com/spf13/pflag"

	"github.com/kart-io/vecstore/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options holds the subset of option.LogOption exposed on the command line.
type Options struct {
	Engine            string   `json:"engine" mapstructure:"engine"`
	Level             string   `json:"level" mapstructure:"level"`
	Format            string   `json:"format" mapstructure:"format"`
	OutputPaths       []string `json:"output-paths" mapstructure:"output-paths"`
	Development       bool     `json:"development" mapstructure:"development"`
	DisableCaller     bool     `json:"disable-caller" mapstructure:"disable-caller"`
	DisableStacktrace bool     `json:"disable-stacktrace" mapstructure:"disable-stacktrace"`
}

// NewOptions creates new Options with defaults taken from option.DefaultLogOption.
func NewOptions() *Options {
	def := option.DefaultLogOption()
	return &Options{
		Engine:            def.Engine,
		Level:             def.Level,
		Format:            def.Format,
		OutputPaths:       def.OutputPaths,
		Development:       def.Development,
		DisableCaller:     def.DisableCaller,
		DisableStacktrace: def.DisableStacktrace,
	}
}

// AddFlags adds flags for logger options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "log."
	fs.StringVar(&o.Engine, p+"engine", o.Engine, "Logging engine (zap|slog).")
	fs.StringVar(&o.Level, p+"level", o.Level, "Log level (DEBUG|INFO|WARN|ERROR|FATAL).")
	fs.StringVar(&o.Format, p+"format", o.Format, "Log format (json|console).")
	fs.StringSliceVar(&o.OutputPaths, p+"output-paths", o.OutputPaths, "Output paths for logs.")
	fs.BoolVar(&o.Development, p+"development", o.Development, "Enable development mode.")
	fs.BoolVar(&o.DisableCaller, p+"disable-caller", o.DisableCaller, "Disable caller detection.")
	fs.BoolVar(&o.DisableStacktrace, p+"disable-stacktrace", o.DisableStacktrace, "Disable stacktrace capture.")
}

// Complete completes the logger options with defaults.
func (o *Options) Complete() error {
	if len(o.OutputPaths) == 0 {
		o.OutputPaths = []string{"stdout"}
	}
	return nil
}

// Validate validates the logger options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch strings.ToLower(o.Engine) {
	case "", "zap", "slog":
	default:
		errs = append(errs, fmt.Errorf("log engine must be zap or slog, got %q", o.Engine))
	}
	switch strings.ToUpper(o.Level) {
	case "", "DEBUG", "INFO", "WARN", "ERROR", "FATAL":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", o.Level))
	}
	switch strings.ToLower(o.Format) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log format must be json or console, got %q", o.Format))
	}
	return errs
}

// LogOption converts the options into an option.LogOption.
func (o *Options) LogOption() *option.LogOption {
	opt := option.DefaultLogOption()
	if o.Engine != "" {
		opt.Engine = o.Engine
	}
	if o.Level != "" {
		opt.Level = o.Level
	}
	if o.Format != "" {
		opt.Format = o.Format
	}
	opt.OutputPaths = o.OutputPaths
	opt.Development = o.Development
	opt.DisableCaller = o.DisableCaller
	opt.DisableStacktrace = o.DisableStacktrace
	return opt
}

// CreateLogger creates a new logger instance based on the options.
func (o *Options) CreateLogger() (core.Logger, error) {
	return logger.New(o.LogOption())
}

// Init initializes the global logger with the options.
func (o *Options) Init() error {
	log, err := o.CreateLogger()
	if err != nil {
		return err
	}
	logger.SetGlobal(log)
	return nil
}
