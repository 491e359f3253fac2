// Package config holds the settings of a locktel session.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/sarchlab/locktel/sharedstate"
)

// Validation errors. Validate wraps one or more of them.
var (
	ErrInvalidPeriod      = errors.New("producer period must be positive")
	ErrInvalidIterations  = errors.New("worker iteration bound must be positive")
	ErrInvalidWorkerCount = errors.New("worker count must be at least one")
	ErrInvalidPolicy      = errors.New("unknown lock policy")
	ErrInvalidSetting     = errors.New("invalid setting")
)

// Config is the configuration of a session.
type Config struct {
	ProducerPeriod  time.Duration      `json:"producer_period"`
	TimerWork       uint64             `json:"timer_work"`
	SummaryEvery    uint64             `json:"summary_every"`
	Iterations      uint64             `json:"iterations"`
	Policy          sharedstate.Policy `json:"policy"`
	Workers         int                `json:"workers"`
	RelaxDelay      time.Duration      `json:"relax_delay"`
	YieldEvery      uint64             `json:"yield_every"`
	InterruptPeriod time.Duration      `json:"interrupt_period"`
	Duration        time.Duration      `json:"duration"`
	MonitorPort     int                `json:"monitor_port"`
	RecordPath      string             `json:"record_path"`
	LogLevel        string             `json:"log_level"`
}

// Default returns the reference configuration: a 20 ms producer and two
// blocking workers with 100 000 iterations each.
func Default() Config {
	return Config{
		ProducerPeriod: 20 * time.Millisecond,
		TimerWork:      10,
		SummaryEvery:   1000,
		Iterations:     100000,
		Policy:         sharedstate.Blocking,
		Workers:        2,
		YieldEvery:     4096,
		LogLevel:       "info",
	}
}

// Validate reports every invalid field of c.
func (c Config) Validate() error {
	var errs []error

	if c.ProducerPeriod <= 0 {
		errs = append(errs,
			fmt.Errorf("%w: %s", ErrInvalidPeriod, c.ProducerPeriod))
	}

	if c.Iterations == 0 {
		errs = append(errs, ErrInvalidIterations)
	}

	if c.Workers < 1 {
		errs = append(errs,
			fmt.Errorf("%w: %d", ErrInvalidWorkerCount, c.Workers))
	}

	if c.Policy != sharedstate.Blocking && c.Policy != sharedstate.BestEffort {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidPolicy, c.Policy))
	}

	if c.RelaxDelay < 0 {
		errs = append(errs,
			fmt.Errorf("%w: negative relax delay %s", ErrInvalidSetting, c.RelaxDelay))
	}

	if c.InterruptPeriod < 0 {
		errs = append(errs,
			fmt.Errorf("%w: negative interrupt period %s", ErrInvalidSetting, c.InterruptPeriod))
	}

	if c.Duration < 0 {
		errs = append(errs,
			fmt.Errorf("%w: negative duration %s", ErrInvalidSetting, c.Duration))
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		errs = append(errs,
			fmt.Errorf("%w: monitor port %d", ErrInvalidSetting, c.MonitorPort))
	}

	return errors.Join(errs...)
}
