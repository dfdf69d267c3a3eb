package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepFull bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run every enabled importer",
	Long: `Runs all enabled importers in declaration order. A failing importer
does not stop the others; the command fails if any importer failed.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepFull, "full", false, "ignore cursors and re-fetch everything")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	if coordinator == nil {
		return errNoCoordinator
	}
	ctx, cancel := signalContext()
	defer cancel()

	mode := runMode(sweepFull)
	cmd.Printf("Sweeping all importers (%s)...\n", mode)

	summaries, err := coordinator.Sweep(ctx, mode)
	if len(summaries) > 0 {
		cmd.Println(renderSummaries(summaries))
	}
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	cmd.Printf("%d importers completed.\n", len(summaries))
	return nil
}
