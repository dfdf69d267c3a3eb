package domain

import "time"

// TaskIDSweep is the scheduled incremental sweep over all enabled importers.
const TaskIDSweep = "openleg-sweep"

// ScheduledTask is the persisted state of a recurring sweep.
type ScheduledTask struct {
	ID   string
	Name string

	// Interval applies when Schedule is empty.
	Interval time.Duration

	// Schedule is a five-field cron expression.
	Schedule string

	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time
	LastError   string

	// ConsecutiveFailures resets on the first successful sweep.
	ConsecutiveFailures int

	Enabled bool
}

// Due reports whether an enabled task should run at now.
// A task that never ran is always due.
func (t ScheduledTask) Due(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	return t.NextRun.IsZero() || !t.NextRun.After(now)
}

// TaskResult is the outcome of one scheduled sweep.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed counts created, updated and unchanged records.
	ItemsProcessed int

	// ItemsFailed counts rejected and failed records.
	ItemsFailed int

	// RunIDs link the sweep to its importer runs in run history.
	RunIDs []string

	// FailedImporters lists importers whose run did not complete.
	FailedImporters []string
}

// Duration is the wall time of the sweep.
func (r TaskResult) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// SchedulerConfig is the scheduler section of SyncSettings.
type SchedulerConfig struct {
	// Enabled is the master switch; when false no task runs.
	Enabled bool

	TaskConfigs map[string]TaskConfig
}

// TaskConfig configures one task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration

	// Schedule overrides Interval when set.
	Schedule string
}

// GetTaskConfig returns the configuration for taskID, or the zero value.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig sweeps hourly.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		TaskConfigs: map[string]TaskConfig{
			TaskIDSweep: {Enabled: true, Interval: time.Hour},
		},
	}
}
