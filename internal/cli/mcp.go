package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/watchfire-io/agentwatch/internal/agent"
	"github.com/watchfire-io/agentwatch/internal/buildinfo"
	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/mcp"
	"github.com/watchfire-io/agentwatch/internal/store"
)

var (
	mcpProject   string
	mcpRolesDir  string
	mcpDashboard bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the agent supervisor as MCP tools over stdio",
	Long: `Run a supervisor for the current project and expose spawn, status, kill
and activity queries as MCP tools on stdin/stdout.

Agents keep running when this process exits. Every task is mirrored into
the shared store so the dashboard can show it.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVarP(&mcpProject, "project", "p", "", "project directory (default: current directory)")
	mcpCmd.Flags().StringVar(&mcpRolesDir, "roles-dir", "", "agent role directory (default: <project>/.claude/agents)")
	mcpCmd.Flags().BoolVar(&mcpDashboard, "dashboard", false, "start the dashboard if it is not running")
}

func runMCP(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol.
	log.SetOutput(os.Stderr)
	log.SetPrefix("[mcp] ")

	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if err := config.EnsureGlobalLogsDir(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	projectPath := mcpProject
	if projectPath == "" {
		if projectPath, err = os.Getwd(); err != nil {
			return err
		}
	}
	rolesDir := mcpRolesDir
	if rolesDir == "" {
		rolesDir = config.RolesDir(settings, projectPath)
	}

	opts := agent.Options{
		ProjectPath: projectPath,
		RolesDir:    rolesDir,
		AgentPath:   settings.Agent.Path,
	}

	// The supervisor still works without the store; tasks just don't
	// reach the dashboard.
	st, err := openStore(ctx)
	if err != nil {
		log.Printf("Store unavailable, running without dashboard mirroring: %v", err)
	} else {
		defer st.Close()
		opts.Store = st
	}

	mgr, err := agent.NewManager(opts)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if mcpDashboard {
		if _, err := EnsureDashboard(); err != nil {
			log.Printf("Dashboard not started: %v", err)
		}
	}

	log.Printf("Serving project %s (session %s)", mgr.ProjectName(), mgr.SessionID())
	return mcp.NewServer(mgr, buildinfo.Version).Serve(ctx, os.Stdin, os.Stdout)
}

// openStore opens the shared store at its default location.
func openStore(ctx context.Context) (*store.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return store.Open(ctx, "")
}
