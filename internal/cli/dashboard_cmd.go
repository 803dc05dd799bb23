package cli

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/watchfire-io/agentwatch/internal/client"
	"github.com/watchfire-io/agentwatch/internal/config"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"dash"},
	Short:   "Manage the dashboard server",
	Long:    `Manage the dashboard server that streams agent transcripts.`,
}

var dashboardStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dashboard status",
	RunE:  runDashboardStatus,
}

var dashboardStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dashboard",
	RunE:  runDashboardStart,
}

var dashboardStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the dashboard",
	RunE:  runDashboardStop,
}

func init() {
	dashboardCmd.AddCommand(dashboardStartCmd)
	dashboardCmd.AddCommand(dashboardStatusCmd)
	dashboardCmd.AddCommand(dashboardStopCmd)
}

func runDashboardStart(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsDashboardRunning()
	if err != nil {
		return fmt.Errorf("failed to check dashboard status: %w", err)
	}
	if running {
		fmt.Printf("Dashboard is already running at %s (PID %d).\n", paint(styleCommand, info.BaseURL()), info.PID)
		return nil
	}

	fmt.Print("Starting dashboard...")
	info, err = startDashboard()
	if err != nil {
		fmt.Println()
		return err
	}
	fmt.Printf(" %s at %s (PID %d).\n", paint(styleSuccess, "started"), paint(styleCommand, info.BaseURL()), info.PID)
	return nil
}

func runDashboardStatus(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsDashboardRunning()
	if err != nil {
		return err
	}
	if !running {
		fmt.Println("Dashboard is not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	c := client.New(info.BaseURL())
	health, err := c.Health(ctx)
	if err != nil {
		fmt.Printf("%s dashboard process %d is alive but not answering: %v\n", paint(styleWarning, "⚠"), info.PID, err)
		return nil
	}

	fmt.Printf("Dashboard is %s.\n", paint(styleSuccess, health.Status))
	printField("URL", info.BaseURL())
	printField("PID", fmt.Sprint(health.PID))
	printField("Version", health.Version)
	printField("Uptime", time.Since(health.StartedAt).Truncate(time.Second).String())
	printField("Schema", fmt.Sprint(health.SchemaVersion))
	printField("Streams", fmt.Sprint(health.Subscribers))

	if stats, err := c.Stats(ctx); err == nil {
		fmt.Println()
		printField("Projects", fmt.Sprint(stats.Projects))
		printField("Tasks", fmt.Sprintf("%d (%d running, %d completed, %d failed)",
			stats.Total, stats.Running, stats.Completed, stats.Failed))
		printField("Tokens", fmt.Sprintf("%d in / %d out", stats.InputTokens, stats.OutputTokens))
	}
	return nil
}

func runDashboardStop(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsDashboardRunning()
	if err != nil {
		return fmt.Errorf("failed to check dashboard status: %w", err)
	}
	if !running {
		fmt.Println("Dashboard is not running.")
		return nil
	}

	process, err := os.FindProcess(info.PID)
	if err != nil {
		return fmt.Errorf("failed to find dashboard process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send stop signal: %w", err)
	}

	// Poll for shutdown (max 5 seconds)
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !config.ProcessAlive(info.PID) {
			fmt.Println("Dashboard stopped.")
			return nil
		}
	}
	return fmt.Errorf("dashboard did not stop within timeout")
}

func printField(label, value string) {
	fmt.Printf("  %s %s\n", paint(styleLabel, fmt.Sprintf("%-10s", label+":")), paint(styleValue, value))
}
