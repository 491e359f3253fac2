package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/sarchlab/locktel/config"
	"github.com/sarchlab/locktel/runner"
	"github.com/sarchlab/locktel/sharedstate"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one session and print the latency report.",
	Long: "`run` starts the producer and the workers, waits until the " +
		"workers finish or the session is interrupted, and reports the " +
		"statistics of every actor.",
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd.Flags())
}

func addRunFlags(flags *pflag.FlagSet) {
	defaults := config.Default()

	flags.Duration("period", defaults.ProducerPeriod, "Period of the producer.")
	flags.Uint64("iterations", defaults.Iterations, "Iterations of each worker.")
	flags.String("policy", defaults.Policy.String(),
		"Lock policy of the workers: blocking or best-effort.")
	flags.Int("workers", defaults.Workers, "Number of workers.")
	flags.Duration("relax", defaults.RelaxDelay,
		"Back-off after a failed best-effort acquisition. Zero yields.")
	flags.Uint64("yield-every", defaults.YieldEvery,
		"Iterations between scheduler yields of a worker.")
	flags.Duration("interrupt-period", defaults.InterruptPeriod,
		"Period of the simulated interrupt source. Zero disables it.")
	flags.Duration("duration", defaults.Duration,
		"Stop the workers after this long. Zero waits for them to finish.")
	flags.Int("monitor-port", defaults.MonitorPort,
		"Serve the monitor on this port. Zero disables monitoring.")
	flags.Bool("open", false, "Open the monitor in a browser.")
	flags.String("record", defaults.RecordPath,
		"Record the session into this SQLite file, without extension.")
	flags.String("log-level", defaults.LogLevel, "Log level.")
	flags.StringSlice("env-file", nil, "Read settings from these .env files.")
}

func runSession(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	envFiles, _ := flags.GetStringSlice("env-file")

	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}

	if err := applyFlags(flags, &cfg); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	open, _ := flags.GetBool("open")

	opts := []runner.Option{runner.WithLogger(logger)}
	if open {
		opts = append(opts, runner.WithMonitorCallback(func(url string) {
			if err := browser.OpenURL(url); err != nil {
				logger.Warn().Err(err).Msg("cannot open browser")
			}
		}))
	}

	r, err := runner.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := r.Run(ctx)
	if err != nil {
		return err
	}

	return report.Verify()
}

func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error

	if flags.Changed("period") {
		cfg.ProducerPeriod, _ = flags.GetDuration("period")
	}

	if flags.Changed("iterations") {
		cfg.Iterations, _ = flags.GetUint64("iterations")
	}

	if flags.Changed("policy") {
		s, _ := flags.GetString("policy")

		cfg.Policy, err = sharedstate.ParsePolicy(s)
		if err != nil {
			return fmt.Errorf("--policy: %w", err)
		}
	}

	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}

	if flags.Changed("relax") {
		cfg.RelaxDelay, _ = flags.GetDuration("relax")
	}

	if flags.Changed("yield-every") {
		cfg.YieldEvery, _ = flags.GetUint64("yield-every")
	}

	if flags.Changed("interrupt-period") {
		cfg.InterruptPeriod, _ = flags.GetDuration("interrupt-period")
	}

	if flags.Changed("duration") {
		cfg.Duration, _ = flags.GetDuration("duration")
	}

	if flags.Changed("monitor-port") {
		cfg.MonitorPort, _ = flags.GetInt("monitor-port")
	}

	if flags.Changed("record") {
		cfg.RecordPath, _ = flags.GetString("record")
	}

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	return nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("--log-level: %w", err)
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().
		Logger(), nil
}
