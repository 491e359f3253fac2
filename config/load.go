package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sarchlab/locktel/sharedstate"
)

// DefaultEnvFile is read by Load when no file is named. It is optional.
const DefaultEnvFile = ".env"

// EnvPrefix prefixes all environment variables read by Load.
const EnvPrefix = "LOCKTEL_"

// Load starts from Default, loads the given .env files into the process
// environment and applies the LOCKTEL_* variables. With no files given, the
// default .env file is loaded if it exists. Variables already set in the
// environment take precedence over the files.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			envFiles = []string{DefaultEnvFile}
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("loading env file %s: %w", f, err)
		}
	}

	c := Default()
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	return c, nil
}

// ApplyEnv overrides the fields of c with the LOCKTEL_* variables found by
// lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	durations := map[string]*time.Duration{
		"PERIOD":           &c.ProducerPeriod,
		"RELAX":            &c.RelaxDelay,
		"INTERRUPT_PERIOD": &c.InterruptPeriod,
		"DURATION":         &c.Duration,
	}
	for key, field := range durations {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, envError(key, err))
				continue
			}
			*field = d
		}
	}

	counts := map[string]*uint64{
		"ITERATIONS":    &c.Iterations,
		"TIMER_WORK":    &c.TimerWork,
		"SUMMARY_EVERY": &c.SummaryEvery,
		"YIELD_EVERY":   &c.YieldEvery,
	}
	for key, field := range counts {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				errs = append(errs, envError(key, err))
				continue
			}
			*field = n
		}
	}

	ints := map[string]*int{
		"WORKERS":      &c.Workers,
		"MONITOR_PORT": &c.MonitorPort,
	}
	for key, field := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, envError(key, err))
				continue
			}
			*field = n
		}
	}

	if v, ok := lookup(EnvPrefix + "POLICY"); ok {
		p, err := sharedstate.ParsePolicy(v)
		if err != nil {
			errs = append(errs, envError("POLICY", fmt.Errorf("%w: %w", ErrInvalidPolicy, err)))
		} else {
			c.Policy = p
		}
	}

	if v, ok := lookup(EnvPrefix + "RECORD"); ok {
		c.RecordPath = v
	}

	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok {
		c.LogLevel = v
	}

	return errors.Join(errs...)
}

// parseDuration accepts Go duration strings and plain nanosecond counts.
func parseDuration(v string) (time.Duration, error) {
	if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ns), nil
	}

	return time.ParseDuration(v)
}

func envError(key string, err error) error {
	return fmt.Errorf("%w: %s%s: %w", ErrInvalidSetting, EnvPrefix, key, err)
}
