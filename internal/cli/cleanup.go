package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/daemon/server"
)

var (
	cleanupDays      int
	cleanupNoArchive bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete finished tasks past the retention horizon",
	Long: `Delete completed and failed tasks that started before the retention
horizon. Their logs are compressed to .xz unless archiving is disabled.
Running tasks are never removed.

The dashboard runs the same sweep every time it starts.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "retention horizon in days (default: settings retention_days)")
	cleanupCmd.Flags().BoolVar(&cleanupNoArchive, "no-archive", false, "leave logs uncompressed")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	days := settings.Dashboard.RetentionDays
	if cleanupDays > 0 {
		days = cleanupDays
	}
	archive := settings.Dashboard.ArchiveLogs && !cleanupNoArchive

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := server.RunRetention(cmd.Context(), st, time.Duration(days)*24*time.Hour, archive)
	if err != nil {
		return err
	}

	if report.Deleted == 0 {
		fmt.Printf("No tasks older than %d days.\n", days)
		return nil
	}
	fmt.Printf("%s %d tasks older than %d days", paint(styleSuccess, "Removed"), report.Deleted, days)
	if archive {
		fmt.Printf(", archived %d logs", report.Archived)
	}
	fmt.Println(".")
	return nil
}
