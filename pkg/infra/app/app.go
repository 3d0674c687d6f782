// Package app provides application bootstrapping with Cobra, Viper, and Pflag.
//
// This package provides a unified way to:
//   - Define a root command and subcommands with Cobra
//   - Load configuration from files, environment variables, and flags using Viper
//   - Use the functional options pattern for configuration
//
// Usage:
//
//	app := app.NewApp(
//	    app.WithName("myapp"),
//	    app.WithDescription("My application"),
//	    app.WithOptions(opts),
//	    app.WithCommands(newQueryCommand(opts)),
//	)
//	app.Run()
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kart-io/vecstore/pkg/infra/app/cliflag"
)

// CliOptions abstracts the configuration options of a command line application.
type CliOptions interface {
	// Flags returns the flags grouped by section.
	Flags() cliflag.NamedFlagSets
	// Complete fills in fields not set by flags, config or environment.
	Complete() error
	// Validate checks the options and aggregates every problem found.
	Validate() error
}

// App is the main application structure.
type App struct {
	name        string
	shortDesc   string
	description string
	options     CliOptions
	runFunc     RunFunc
	commands    []*cobra.Command
	envAliases  map[string][]string
	cmd         *cobra.Command
	viper       *viper.Viper
	args        cobra.PositionalArgs
	silence     bool
	noVersion   bool
	noConfig    bool
}

// RunFunc is the application's run function.
type RunFunc func() error

// Option configures an App.
type Option func(*App)

// WithName sets the application name.
func WithName(name string) Option {
	return func(a *App) {
		a.name = name
	}
}

// WithShortDescription sets the short description.
func WithShortDescription(desc string) Option {
	return func(a *App) {
		a.shortDesc = desc
	}
}

// WithDescription sets the long description.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithOptions sets the CLI options.
func WithOptions(opts CliOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the run function of the root command.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.runFunc = run
	}
}

// WithCommands adds subcommands. Options are loaded and validated before
// any of them runs.
func WithCommands(cmds ...*cobra.Command) Option {
	return func(a *App) {
		a.commands = append(a.commands, cmds...)
	}
}

// WithEnvAliases binds extra environment variables to a config key. The
// first variable that is set wins; the prefixed variable is always tried first.
func WithEnvAliases(key string, envs ...string) Option {
	return func(a *App) {
		if a.envAliases == nil {
			a.envAliases = make(map[string][]string)
		}
		a.envAliases[key] = append(a.envAliases[key], envs...)
	}
}

// WithArgs sets the positional args validation.
func WithArgs(args cobra.PositionalArgs) Option {
	return func(a *App) {
		a.args = args
	}
}

// WithSilence disables usage and error printing.
func WithSilence() Option {
	return func(a *App) {
		a.silence = true
	}
}

// WithNoVersion disables version flag.
func WithNoVersion() Option {
	return func(a *App) {
		a.noVersion = true
	}
}

// WithNoConfig disables config file loading.
func WithNoConfig() Option {
	return func(a *App) {
		a.noConfig = true
	}
}

// NewApp creates a new application instance.
func NewApp(opts ...Option) *App {
	a := &App{
		name:  filepath.Base(os.Args[0]),
		viper: viper.New(),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.buildCommand()
	return a
}

// buildCommand creates the cobra command tree.
func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:   a.name,
		Short: a.shortDesc,
		Long:  a.description,
		Args:  a.args,
		// Always silence usage on errors - users can use --help to see usage
		SilenceUsage:      true,
		PersistentPreRunE: a.prepare,
	}
	if a.runFunc != nil {
		cmd.RunE = func(*cobra.Command, []string) error { return a.runFunc() }
	}

	if a.silence {
		cmd.SilenceErrors = true
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.PersistentFlags().SortFlags = false

	a.addGlobalFlags(cmd)

	// Options flags are persistent so every subcommand shares them.
	if a.options != nil {
		fss := a.options.Flags()
		fss.AddTo(cmd.PersistentFlags())

		cmd.SetUsageFunc(func(c *cobra.Command) error {
			out := c.OutOrStderr()
			fmt.Fprintf(out, "Usage:\n  %s\n", c.UseLine())
			if c.HasAvailableSubCommands() {
				fmt.Fprintf(out, "\nAvailable Commands:\n")
				for _, sub := range c.Commands() {
					if sub.IsAvailableCommand() {
						fmt.Fprintf(out, "  %-12s %s\n", sub.Name(), sub.Short)
					}
				}
			}
			if c.HasAvailableLocalFlags() {
				fmt.Fprintf(out, "\nFlags:\n%s", c.LocalNonPersistentFlags().FlagUsages())
			}
			cliflag.PrintSections(out, fss, 0)
			return nil
		})
	}

	for _, sub := range a.commands {
		cmd.AddCommand(sub)
	}

	a.cmd = cmd
}

// addGlobalFlags adds global flags to the command.
func (a *App) addGlobalFlags(cmd *cobra.Command) {
	if !a.noConfig {
		cmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	}

	if !a.noVersion {
		version.AddFlags(cmd.PersistentFlags())
	}
}

// prepare loads configuration, then completes and validates the options.
// It runs before the root command and every subcommand.
func (a *App) prepare(cmd *cobra.Command, _ []string) error {
	// Handle version flag - this will print and exit if --version is set
	if !a.noVersion {
		version.PrintAndExitIfRequested()
	}

	if !a.noConfig {
		if err := a.loadConfig(cmd); err != nil {
			return err
		}
	}

	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// loadConfig loads configuration from file, environment, and flags.
// Precedence: changed flag > environment > config file > flag default.
func (a *App) loadConfig(cmd *cobra.Command) error {
	v := a.viper

	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(a.name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), "."+a.name))
		v.AddConfigPath("/etc/" + a.name)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(a.envPrefix())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	for key, envs := range a.envAliases {
		prefixed := a.envPrefix() + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
		if err := v.BindEnv(append([]string{key, prefixed}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	expandEnvVars(v, cmd.Flags())

	if a.options != nil {
		if err := v.Unmarshal(a.options); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	return nil
}

func (a *App) envPrefix() string {
	return strings.ToUpper(strings.ReplaceAll(a.name, "-", "_"))
}

// expandEnvVars expands ${VAR} and $VAR style environment variables in config
// values. Keys set by an explicit flag are left alone.
func expandEnvVars(v *viper.Viper, flags *pflag.FlagSet) {
	envPattern := regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

	for _, key := range v.AllKeys() {
		if f := flags.Lookup(key); f != nil && f.Changed {
			continue
		}
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		expanded := envPattern.ReplaceAllStringFunc(strVal, func(match string) string {
			var varName string
			if strings.HasPrefix(match, "${") {
				varName = match[2 : len(match)-1]
			} else {
				varName = match[1:]
			}
			if envVal := os.Getenv(varName); envVal != "" {
				return envVal
			}
			return match // 保留原样，如果环境变量不存在
		})
		if expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

// Run executes the application.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command returns the cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}
