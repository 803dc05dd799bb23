package server

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/store"
)

// RetentionReport summarizes one retention sweep.
type RetentionReport struct {
	Deleted  int
	Archived int
}

// RunRetention deletes finished tasks older than the horizon and, when
// archive is set, compresses their logs to <log>.xz. Running tasks are
// never swept. Log archival failures are logged, not returned.
func RunRetention(ctx context.Context, st *store.Store, horizon time.Duration, archive bool) (*RetentionReport, error) {
	cutoff := time.Now().Add(-horizon)
	deleted, err := st.Cleanup(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	report := &RetentionReport{Deleted: len(deleted)}
	if !archive {
		log.Printf("[dashboard] Retention removed %d tasks older than %s", report.Deleted, cutoff.Format(time.RFC3339))
		return report, nil
	}

	for _, t := range deleted {
		if t.LogPath == "" {
			continue
		}
		if _, err := os.Stat(t.LogPath); err != nil {
			continue
		}
		if _, err := config.ArchiveLog(t.LogPath); err != nil {
			log.Printf("[dashboard] Failed to archive %s: %v", t.LogPath, err)
			continue
		}
		report.Archived++
	}
	log.Printf("[dashboard] Retention removed %d tasks older than %s (%d logs archived)",
		report.Deleted, cutoff.Format(time.RFC3339), report.Archived)
	return report, nil
}
