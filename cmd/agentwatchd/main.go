// Package main is the entry point for the agentwatchd dashboard server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/watchfire-io/agentwatch/internal/buildinfo"
	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/daemon/server"
	"github.com/watchfire-io/agentwatch/internal/daemon/watcher"
	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	port := flag.Int("port", 0, "Port to listen on (0 uses the configured range)")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("agentwatchd " + buildinfo.Summary())
		return
	}

	log.SetPrefix("[agentwatchd] ")
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	config.LoadEnv()
	if err := run(*port); err != nil {
		if errors.Is(err, config.ErrDashboardLocked) {
			log.Printf("Another dashboard is already running")
			os.Exit(0)
		}
		log.Fatalf("Dashboard failed: %v", err)
	}
	fmt.Println("Dashboard stopped")
}

func run(port int) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	lock, err := config.AcquireDashboardLock()
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Printf("Failed to release lock: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storePath, err := store.DefaultPath()
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, storePath)
	if err != nil {
		return err
	}
	defer st.Close()

	horizon := time.Duration(settings.Dashboard.RetentionDays) * 24 * time.Hour
	if _, err := server.RunRetention(ctx, st, horizon, settings.Dashboard.ArchiveLogs); err != nil {
		log.Printf("Retention sweep failed: %v", err)
	}

	if err := config.EnsureGlobalLogsDir(); err != nil {
		return err
	}
	logsDir, err := config.GlobalLogsDir()
	if err != nil {
		return err
	}
	w, err := watcher.New(logsDir, storePath)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	portStart, portEnd := settings.Dashboard.PortStart, settings.Dashboard.PortEnd
	if port != 0 {
		portStart, portEnd = port, port
	}
	srv, err := server.New(server.Options{
		Host:      config.DashboardHost,
		PortStart: portStart,
		PortEnd:   portEnd,
		Keepalive: time.Duration(settings.Dashboard.KeepaliveSeconds) * time.Second,
		Version:   buildinfo.Version,
		Store:     st,
		Watcher:   w,
	})
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	info := models.NewDashboardInfo(config.DashboardHost, srv.Port(), os.Getpid())
	if err := config.SaveDashboardInfo(info); err != nil {
		return fmt.Errorf("failed to write dashboard info: %w", err)
	}
	defer func() {
		if err := config.RemoveDashboardInfo(); err != nil {
			log.Printf("Failed to remove dashboard info: %v", err)
		}
	}()
	log.Printf("Dashboard %s started at %s (PID %d)", buildinfo.Version, info.BaseURL(), info.PID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
