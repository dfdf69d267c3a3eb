package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [importer]",
	Short: "Show recent import runs",
	Long: `Lists recent run summaries, most recent first. Without an importer,
runs of every importer are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of runs")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output runs as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if coordinator == nil {
		return errNoCoordinator
	}

	importerID := ""
	if len(args) == 1 {
		importerID = args[0]
	}

	runs, err := coordinator.History(context.Background(), importerID, historyLimit)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	if historyJSON {
		return outputHistoryJSON(cmd, runs)
	}
	if len(runs) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			formatTime(r.Started),
			r.ImporterID,
			string(r.Mode),
			stateStyle(r.State).Render(string(r.State)),
			strconv.Itoa(r.RecordsSeen),
			fmt.Sprintf("%d/%d/%d", r.Created, r.Updated, r.Unchanged),
			strconv.Itoa(r.Rejected + r.Failed),
			formatDuration(r.Duration()),
			orDash(string(r.ErrorClass)),
		})
	}
	cmd.Println(renderTable([]string{"Started", "Importer", "Mode", "State", "Seen", "C/U/U", "Failed", "Took", "Class"}, rows))
	return nil
}

type runJSON struct {
	RunID      string           `json:"runId"`
	ImporterID string           `json:"importerId"`
	Mode       string           `json:"mode"`
	State      string           `json:"state"`
	Started    string           `json:"started"`
	Finished   string           `json:"finished,omitempty"`
	Error      string           `json:"error,omitempty"`
	ErrorClass string           `json:"errorClass,omitempty"`
	Counts     domain.RunCounts `json:"counts"`
}

func outputHistoryJSON(cmd *cobra.Command, runs []domain.RunSummary) error {
	out := make([]runJSON, 0, len(runs))
	for _, r := range runs {
		j := runJSON{
			RunID:      r.RunID,
			ImporterID: r.ImporterID,
			Mode:       string(r.Mode),
			State:      string(r.State),
			Started:    r.Started.UTC().Format(time.RFC3339),
			Error:      r.TerminalError,
			ErrorClass: string(r.ErrorClass),
			Counts:     r.RunCounts,
		}
		if !r.Finished.IsZero() {
			j.Finished = r.Finished.UTC().Format(time.RFC3339)
		}
		out = append(out, j)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode runs: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
