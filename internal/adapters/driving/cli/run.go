package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
	"github.com/custodia-labs/openleg-sync/internal/core/ports/driving"
)

var runFull bool

var runCmd = &cobra.Command{
	Use:   "run <importer>",
	Short: "Run one importer",
	Long: `Runs a single importer to completion. By default the run is incremental
and resumes from the importer's cursor; --full re-fetches from the origin.

Interrupting the command stops the run after the current page.`,
	Args: cobra.ExactArgs(1),
	RunE: runImporter,
}

func init() {
	runCmd.Flags().BoolVar(&runFull, "full", false, "ignore the cursor and re-fetch everything")
	rootCmd.AddCommand(runCmd)
}

func runMode(full bool) domain.RunMode {
	if full {
		return domain.RunModeFull
	}
	return domain.RunModeIncremental
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runImporter(cmd *cobra.Command, args []string) error {
	if coordinator == nil {
		return errNoCoordinator
	}
	ctx, cancel := signalContext()
	defer cancel()

	importerID := args[0]
	mode := runMode(runFull)
	cmd.Printf("Running %s (%s)...\n", importerID, mode)

	summary, err := runWithProgress(ctx, cmd, coordinator, importerID, mode)
	if summary != nil {
		cmd.Println(renderSummaries([]domain.RunSummary{*summary}))
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", importerID, err)
	}
	return nil
}

// runWithProgress runs an importer while displaying its live counters.
func runWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	coord driving.Coordinator,
	importerID string,
	mode domain.RunMode,
) (*domain.RunSummary, error) {
	type outcome struct {
		summary *domain.RunSummary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := coord.RunImporter(ctx, importerID, mode)
		done <- outcome{s, err}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastPages := 0
	for {
		select {
		case out := <-done:
			if lastPages > 0 {
				cmd.Println()
			}
			return out.summary, out.err
		case <-ticker.C:
			// Best effort.
			status, err := coord.Status(ctx, importerID)
			if err != nil || status == nil || !status.Running {
				continue
			}
			if status.Counts.PagesFetched > lastPages {
				lastPages = status.Counts.PagesFetched
				cmd.Printf("\r%s: %d pages, %d records", status.State, lastPages, status.Counts.RecordsSeen)
			}
		}
	}
}

// renderSummaries renders run summaries as a table.
func renderSummaries(summaries []domain.RunSummary) string {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.ImporterID,
			string(s.Mode),
			stateStyle(s.State).Render(string(s.State)),
			strconv.Itoa(s.PagesFetched),
			strconv.Itoa(s.RecordsSeen),
			strconv.Itoa(s.Created),
			strconv.Itoa(s.Updated),
			strconv.Itoa(s.Unchanged),
			strconv.Itoa(s.Rejected),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Retries),
			formatDuration(s.Duration()),
			orDash(s.TerminalError),
		})
	}
	return renderTable([]string{
		"Importer", "Mode", "State", "Pages", "Seen", "Created", "Updated",
		"Unchanged", "Rejected", "Failed", "Retries", "Took", "Error",
	}, rows)
}
