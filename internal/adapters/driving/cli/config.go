package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openleg-sync/internal/core/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show pipeline settings",
	Long: `Shows the settings resolved from ~/.openleg-sync/config.toml over the
defaults. Edit the file to change them.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the settings for errors",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println(styles.Title.Render("Current Settings"))
	cmd.Println()

	cmd.Println("[Openleg]")
	cmd.Printf("  Base URL: %s\n", settings.API.BaseURL)
	if settings.API.APIKey != "" {
		cmd.Printf("  API Key: %s\n", maskAPIKey(settings.API.APIKey))
	} else {
		cmd.Printf("  API Key: (not set)\n")
	}
	cmd.Printf("  Timeout: %s\n", settings.API.Timeout)
	cmd.Println()

	cmd.Println("[Retry]")
	cmd.Printf("  Max retries: %d\n", settings.Retry.MaxRetries)
	cmd.Printf("  Backoff: %s to %s\n", settings.Retry.InitialInterval, settings.Retry.MaxInterval)
	cmd.Println()

	cmd.Println("[Scheduler]")
	cmd.Printf("  Enabled: %t\n", settings.Scheduler.Enabled)
	sweep := settings.Scheduler.GetTaskConfig(domain.TaskIDSweep)
	if sweep.Schedule != "" {
		cmd.Printf("  Sweep: cron %q\n", sweep.Schedule)
	} else {
		cmd.Printf("  Sweep: every %s\n", sweep.Interval)
	}
	cmd.Printf("  Workers: %d\n", settings.Workers)
	cmd.Println()

	cmd.Println("[Importers]")
	if len(settings.DisabledImporters) > 0 {
		cmd.Printf("  Disabled: %s\n", strings.Join(settings.DisabledImporters, ", "))
	} else {
		cmd.Printf("  Disabled: (none)\n")
	}
	for id, params := range settings.ImporterParams {
		for k, v := range params {
			cmd.Printf("  %s.%s = %s\n", id, k, v)
		}
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	if err := settingsService.Validate(); err != nil {
		return err
	}
	cmd.Println(styles.Success.Render("Settings are valid."))
	return nil
}

// maskAPIKey masks an API key for display, showing only the last 4 characters.
func maskAPIKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
