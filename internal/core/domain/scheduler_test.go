package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	assert.True(t, config.Enabled)
	sweep := config.GetTaskConfig(TaskIDSweep)
	assert.True(t, sweep.Enabled)
	assert.Equal(t, time.Hour, sweep.Interval)
	assert.Empty(t, sweep.Schedule)

	assert.Equal(t, TaskConfig{}, config.GetTaskConfig("vote-sweep"))
	assert.Equal(t, TaskConfig{}, (&SchedulerConfig{}).GetTaskConfig(TaskIDSweep))
}

func TestScheduledTask_Due(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		task ScheduledTask
		want bool
	}{
		{"never ran", ScheduledTask{Enabled: true}, true},
		{"next run passed", ScheduledTask{Enabled: true, NextRun: now.Add(-time.Second)}, true},
		{"next run is now", ScheduledTask{Enabled: true, NextRun: now}, true},
		{"next run ahead", ScheduledTask{Enabled: true, NextRun: now.Add(time.Minute)}, false},
		{"disabled", ScheduledTask{NextRun: now.Add(-time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.Due(now))
		})
	}
}

func TestTaskResult_Duration(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 90*time.Second, TaskResult{StartedAt: start, EndedAt: start.Add(90 * time.Second)}.Duration())
	assert.Zero(t, TaskResult{StartedAt: start}.Duration())
}
