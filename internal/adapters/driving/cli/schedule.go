package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"

	"github.com/custodia-labs/openleg-sync/internal/logger"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run scheduled sweeps until interrupted",
	Long: `Runs the scheduler in the foreground. The sweep task runs on the
configured interval or cron expression (scheduler.interval_minutes,
scheduler.cron). Edits to the config file rebind the importers without a
restart.`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

var scheduleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sweep task and its recent results",
	Args:  cobra.NoArgs,
	RunE:  runScheduleStatus,
}

var scheduleHistoryLimit int

var errNoScheduler = errors.New("scheduler not configured")

func init() {
	scheduleStatusCmd.Flags().IntVarP(&scheduleHistoryLimit, "limit", "n", 10, "maximum number of results")
	scheduleCmd.AddCommand(scheduleStatusCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errNoScheduler
	}
	ctx, cancel := signalContext()
	defer cancel()

	if watchConfig != nil {
		go func() {
			if err := watchConfig(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("config watch stopped: %v", err)
			}
		}()
	}

	cmd.Println("Scheduler started. Press Ctrl+C to stop.")
	err := scheduler.Start(ctx)
	if stopErr := scheduler.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	if errors.Is(err, context.Canceled) {
		cmd.Println("Scheduler stopped.")
		return nil
	}
	return err
}

func runScheduleStatus(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errNoScheduler
	}
	ctx := context.Background()

	tasks, err := scheduler.Tasks(ctx)
	if err != nil {
		return fmt.Errorf("schedule status: %w", err)
	}
	if len(tasks) == 0 {
		cmd.Println("No scheduled tasks. Run 'openleg-sync schedule' to create them.")
		return nil
	}

	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		every := t.Interval.String()
		if t.Schedule != "" {
			every = t.Schedule
		}
		enabled := styles.Success.Render("yes")
		if !t.Enabled {
			enabled = styles.Muted.Render("no")
		}
		lastErr := "-"
		if t.LastError != "" {
			lastErr = styles.Error.Render(fmt.Sprintf("%s (x%d)", t.LastError, t.ConsecutiveFailures))
		}
		rows = append(rows, []string{
			t.Name, every, enabled, formatTime(t.LastRun), formatTime(t.NextRun),
			formatTime(t.LastSuccess), lastErr,
		})
	}
	cmd.Println(renderTable([]string{"Task", "Every", "Enabled", "Last run", "Next run", "Last success", "Last error"}, rows))

	results, err := scheduler.TaskHistory(ctx, domain.TaskIDSweep, scheduleHistoryLimit)
	if err != nil {
		return fmt.Errorf("schedule status: %w", err)
	}
	if len(results) == 0 {
		return nil
	}

	rows = rows[:0]
	for _, r := range results {
		outcome := styles.Success.Render("ok")
		if !r.Success {
			outcome = styles.Error.Render("failed")
		}
		rows = append(rows, []string{
			formatTime(r.StartedAt),
			outcome,
			strconv.Itoa(len(r.RunIDs)),
			strconv.Itoa(r.ItemsProcessed),
			strconv.Itoa(r.ItemsFailed),
			orDash(strings.Join(r.FailedImporters, ",")),
			formatDuration(r.Duration()),
		})
	}
	cmd.Println(styles.Header.Render("Recent sweeps"))
	cmd.Println(renderTable([]string{"Started", "Result", "Runs", "Processed", "Failed", "Failed importers", "Took"}, rows))
	return nil
}
