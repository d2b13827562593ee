package main

import (
	"context"
	"os"

	"github.com/ipdelete/agent-base-sub000/pkg/config"
	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/ipdelete/agent-base-sub000/pkg/presenter"
	"github.com/ipdelete/agent-base-sub000/pkg/telemetry"
	"github.com/ipdelete/agent-base-sub000/pkg/version"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	appConfig      *config.Config
	tracerShutdown func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "skillctl",
	Short: "Inspect and exercise agent skills",
	Long: `skillctl loads the configured skill roots the same way the agent does at
startup, shows per-skill load outcomes, and runs skill scripts through the
sandbox. It also edits the skill registry's trust and pin records.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		appConfig = cfg

		shutdown, err := initTracing(cmd.Context(), cfg)
		if err != nil {
			logger.G(cmd.Context()).WithError(err).Warn("failed to initialize tracing")
		} else {
			tracerShutdown = shutdown
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		if tracerShutdown == nil {
			return
		}
		if err := tracerShutdown(context.Background()); err != nil {
			logger.G(cmd.Context()).WithError(err).Warn("failed to shut down tracer")
		}
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	if err := config.InitViper(v); err != nil {
		return nil, err
	}
	if err := logger.SetLogLevel(v.GetString("log_level")); err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	logger.SetLogFormat(v.GetString("log_format"))
	return config.Load(v)
}

func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	return telemetry.InitTracer(ctx, telemetry.FromConfig(cfg.Tracing, version.Get().Version))
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringSlice("enabled", nil, `Skills to enable, or one of "all", "all-untrusted", "none"`)
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "fmt", "Log format (fmt, json)")
	flags.Bool("tracing-enabled", false, "Enable OpenTelemetry tracing")
	flags.String("tracing-sampler", "ratio", "Tracing sampler type (always, never, ratio)")
	flags.Float64("tracing-ratio", 1, "Sampling ratio when using ratio sampler")

	v := viper.GetViper()
	v.BindPFlag("skills.enabled", flags.Lookup("enabled"))
	v.BindPFlag("log_level", flags.Lookup("log-level"))
	v.BindPFlag("log_format", flags.Lookup("log-format"))
	v.BindPFlag("tracing.enabled", flags.Lookup("tracing-enabled"))
	v.BindPFlag("tracing.sampler", flags.Lookup("tracing-sampler"))
	v.BindPFlag("tracing.ratio", flags.Lookup("tracing-ratio"))
}

func main() {
	rootCmd.AddCommand(withTracing(loadCmd))
	rootCmd.AddCommand(withTracing(scriptsCmd))
	rootCmd.AddCommand(withTracing(describeCmd))
	rootCmd.AddCommand(withTracing(runCmd))
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}
