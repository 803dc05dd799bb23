package server

import (
	"errors"
	"os"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/transcript"
)

// taskEvents parses a task log through the cache, or the archive if the
// log has been compressed.
func (s *Server) taskEvents(path string) ([]transcript.Event, error) {
	events, err := s.cache.Events(path)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return events, err
	}
	content, aerr := config.ReadArchivedLog(path + ".xz")
	if aerr != nil {
		return nil, err
	}
	return transcript.Parse(content), nil
}

// logSize returns the current size of a live log, or -1 if it is gone.
func logSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return st.Size()
}
