package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status [importer]",
	Short: "Show importer cursors and live state",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var importersCmd = &cobra.Command{
	Use:   "importers",
	Short: "List configured importers",
	Args:  cobra.NoArgs,
	RunE:  runImporters,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(importersCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if coordinator == nil {
		return errNoCoordinator
	}
	ctx := context.Background()

	ids := args
	if len(ids) == 0 {
		for _, b := range coordinator.Importers() {
			ids = append(ids, b.ID)
		}
	}

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		status, err := coordinator.Status(ctx, id)
		if err != nil {
			return fmt.Errorf("status %s: %w", id, err)
		}
		state := status.State
		row := []string{id, stateStyle(state).Render(string(state)), "-", "-", "-", "-", "-"}
		if status.Running {
			row[2] = fmt.Sprintf("%d pages, %d records", status.Counts.PagesFetched, status.Counts.RecordsSeen)
		}
		if c := status.Cursor; c != nil {
			row[3] = formatTime(c.Watermark)
			row[4] = formatTime(c.LastSuccessAt)
			row[5] = formatTime(c.LastAttemptAt)
			if c.LastError != "" {
				row[6] = styles.Error.Render(fmt.Sprintf("[%s] %s", c.LastErrorClass, c.LastError))
			}
		}
		rows = append(rows, row)
	}

	cmd.Println(renderTable([]string{"Importer", "State", "Progress", "Watermark", "Last success", "Last attempt", "Last error"}, rows))
	return nil
}

func runImporters(cmd *cobra.Command, _ []string) error {
	if coordinator == nil {
		return errNoCoordinator
	}

	bindings := coordinator.Importers()
	rows := make([][]string, 0, len(bindings))
	for _, b := range bindings {
		enabled := styles.Success.Render("yes")
		if !b.Enabled {
			enabled = styles.Muted.Render("no")
		}
		rows = append(rows, []string{
			b.ID,
			b.ResourceID,
			b.Bundle,
			formatParams(b),
			string(b.Identity),
			enabled,
		})
	}

	cmd.Println(renderTable([]string{"Importer", "Resource", "Bundle", "Params", "Identity", "Enabled"}, rows))
	cmd.Printf("%d importers\n", len(bindings))
	return nil
}

func formatParams(b domain.ImporterBinding) string {
	if len(b.Params) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(b.Params))
	for k := range b.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + b.Params[k]
	}
	return strings.Join(parts, " ")
}
