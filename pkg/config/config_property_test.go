// Package config provides property-based tests for configuration fallback functionality.
package config

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_InvalidSchedulerValuesFallBackToDefault checks that non-positive scheduler
// settings are always replaced by defaults while valid ones are kept.
func TestProperty_InvalidSchedulerValuesFallBackToDefault(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 50

	properties := gopter.NewProperties(parameters)
	defaults := DefaultSchedulerConfig()

	properties.Property("non-positive expiration falls back to default", prop.ForAll(
		func(seconds int) bool {
			cfg := &Config{Scheduler: SchedulerConfig{WorkerExpirationSeconds: seconds}}
			validateAndApplyDefaults(cfg)
			return cfg.Scheduler.WorkerExpirationSeconds == defaults.WorkerExpirationSeconds
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("non-positive reaper interval falls back to default", prop.ForAll(
		func(seconds int) bool {
			cfg := &Config{Scheduler: SchedulerConfig{ReaperIntervalSeconds: seconds}}
			validateAndApplyDefaults(cfg)
			return cfg.Scheduler.ReaperIntervalSeconds == defaults.ReaperIntervalSeconds
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("positive values are preserved", prop.ForAll(
		func(expiration, interval int) bool {
			cfg := &Config{Scheduler: SchedulerConfig{
				WorkerExpirationSeconds: expiration,
				ReaperIntervalSeconds:   interval,
			}}
			validateAndApplyDefaults(cfg)
			return cfg.Scheduler.WorkerExpirationSeconds == expiration &&
				cfg.Scheduler.ReaperIntervalSeconds == interval
		},
		gen.IntRange(1, 86400),
		gen.IntRange(1, 86400),
	))

	properties.TestingRun(t)
}
