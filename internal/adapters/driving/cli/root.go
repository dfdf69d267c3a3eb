// Package cli provides the openleg-sync command line interface.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openleg-sync/internal/core/ports/driving"
	"github.com/custodia-labs/openleg-sync/internal/logger"
)

// version is set at build time with -ldflags.
var version = "dev"

// Options are the global flags handed to the bootstrap function.
type Options struct {
	// ConfigDir overrides the config directory (~/.openleg-sync).
	ConfigDir string

	// DataDir overrides the sqlite data directory.
	DataDir string

	// Memory keeps all state in memory for dry runs.
	Memory bool
}

// Services are the driving ports the commands use.
type Services struct {
	Coordinator driving.Coordinator
	Scheduler   driving.Scheduler
	Settings    driving.SettingsService

	// Watch blocks, rebinding importers whenever the config file changes.
	// Nil disables config reload.
	Watch func(ctx context.Context) error

	// Close releases storage. May be nil.
	Close func() error
}

// Bootstrap wires services from the global options.
type Bootstrap func(opts Options) (*Services, error)

var (
	opts      Options
	bootstrap Bootstrap
	closeFn   func() error

	coordinator     driving.Coordinator
	scheduler       driving.Scheduler
	settingsService driving.SettingsService
	watchConfig     func(ctx context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "openleg-sync",
	Short: "Synchronise Openleg legislative data into local storage",
	Long: `openleg-sync fetches bills, calendars, agendas and members from the
New York State Senate Openleg API and reconciles them into a local store.

Each importer keeps a cursor so incremental runs only fetch what changed.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		logger.Sync()
		if closeFn == nil {
			return nil
		}
		err := closeFn()
		closeFn = nil
		return err
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.StringVar(&opts.ConfigDir, "config-dir", "", "config directory (default ~/.openleg-sync)")
	flags.StringVar(&opts.DataDir, "data-dir", "", "data directory (default ~/.openleg-sync/data)")
	flags.BoolVar(&opts.Memory, "memory", false, "keep cursors and records in memory")
}

// setup applies --verbose and runs the bootstrap once.
func setup(cmd *cobra.Command, _ []string) error {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger.SetVerbose(true)
	}
	if bootstrap == nil || cmd == versionCmd {
		return nil
	}

	svc, err := bootstrap(opts)
	if err != nil {
		return err
	}
	coordinator = svc.Coordinator
	scheduler = svc.Scheduler
	settingsService = svc.Settings
	watchConfig = svc.Watch
	closeFn = svc.Close
	return nil
}

// Execute runs the root command with services from b.
func Execute(b Bootstrap, buildVersion string) error {
	bootstrap = b
	if buildVersion != "" {
		version = buildVersion
	}
	return rootCmd.Execute()
}

var errNoCoordinator = errors.New("coordinator not configured")
