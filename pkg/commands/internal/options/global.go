// Package options defines the flag sets shared between commands.
package options

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/wuxler/stowage/pkg/config"
	"github.com/wuxler/stowage/pkg/util/homedir"
	"github.com/wuxler/stowage/pkg/xlog"
)

const (
	// GlobalFlagCategory is the category of the global flags.
	GlobalFlagCategory = "[Global]"

	// DefaultLogLevel is the log level used when none is configured.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the log output format used when none is configured.
	DefaultLogFormat = "text"
)

// NewGlobalOptions returns a *GlobalOptions with default values.
func NewGlobalOptions() *GlobalOptions {
	return &GlobalOptions{}
}

// GlobalOptions are options that apply to all commands.
type GlobalOptions struct {
	// ConfigFile is the path to the configuration file. When empty the
	// default location is probed and missing files are tolerated.
	ConfigFile string

	// LogLevel is the minimum level emitted, one of "debug", "info",
	// "warn" or "error".
	LogLevel string

	// LogFormat is the standard output log format, "text" or "json".
	LogFormat string

	// LogFile is an optional file logs are written to in addition to the
	// standard output.
	LogFile string

	// Debug forces the log level to debug.
	Debug bool

	cfg *config.Config
}

// Flags returns the []cli.Flag related to current options.
func (o *GlobalOptions) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to the configuration file",
			Sources:     cli.EnvVars("STOWAGE_CONFIG"),
			Destination: &o.ConfigFile,
			Category:    GlobalFlagCategory,
			Persistent:  true,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       `log level, one of "debug", "info", "warn" or "error"`,
			Sources:     cli.EnvVars("STOWAGE_LOG_LEVEL"),
			Destination: &o.LogLevel,
			Category:    GlobalFlagCategory,
			Persistent:  true,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       `log output format, one of "text" or "json"`,
			Sources:     cli.EnvVars("STOWAGE_LOG_FORMAT"),
			Destination: &o.LogFormat,
			Category:    GlobalFlagCategory,
			Persistent:  true,
		},
		&cli.StringFlag{
			Name:        "log-file",
			Usage:       "write logs to the file in addition to the standard output",
			Sources:     cli.EnvVars("STOWAGE_LOG_FILE"),
			Destination: &o.LogFile,
			Category:    GlobalFlagCategory,
			Persistent:  true,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Aliases:     []string{"d"},
			Usage:       "enable debug mode",
			Sources:     cli.EnvVars("STOWAGE_DEBUG"),
			Destination: &o.Debug,
			Category:    GlobalFlagCategory,
			Persistent:  true,
		},
	}
}

// Setup loads the layered configuration and installs the default logger.
// Flags and environment variables win over the configuration file, and
// the file wins over built-in defaults.
func (o *GlobalOptions) Setup(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return err
	}
	o.cfg = cfg

	if o.LogLevel == "" {
		o.LogLevel = cfg.StringOr(config.KeyLogLevel, DefaultLogLevel)
	}
	if o.LogFormat == "" {
		o.LogFormat = cfg.StringOr(config.KeyLogFormat, DefaultLogFormat)
	}
	if o.LogFile == "" {
		o.LogFile = cfg.String(config.KeyLogFile)
	}
	if o.LogFile, err = homedir.Expand(o.LogFile); err != nil {
		return err
	}

	level, err := xlog.ParseLevel(o.LogLevel)
	if err != nil {
		return err
	}
	if o.Debug {
		level = xlog.LevelDebug
	}

	logConfig := xlog.NewConfig()
	logConfig.Level = level
	logConfig.StdFormat = o.LogFormat
	logConfig.Path = o.LogFile
	xlog.SetDefault(xlog.New(logConfig))
	return nil
}

// Config returns the configuration loaded by Setup. It is nil before
// Setup runs.
func (o *GlobalOptions) Config() *config.Config {
	return o.cfg
}
