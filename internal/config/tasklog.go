package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ulikunitz/xz"

	"github.com/watchfire-io/agentwatch/internal/models"
)

// LogDelimiter opens and closes metadata blocks in a task log.
const LogDelimiter = "---"

// LogTimestampFormat is the timestamp prefix of task log file names.
const LogTimestampFormat = "20060102-150405"

// TaskLogPath returns <logsDir>/<agent>/<YYYYMMDD-HHMMSS>-<taskID>.log.
func TaskLogPath(logsDir, agent, taskID string, startedAt time.Time) string {
	name := fmt.Sprintf("%s-%s.log", startedAt.Format(LogTimestampFormat), taskID)
	return filepath.Join(logsDir, agent, name)
}

// CreateTaskLog creates the log file, writes the header block and returns
// the open file positioned for the agent's output.
func CreateTaskLog(path string, header *models.LogHeader) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, LogDelimiter)
	fmt.Fprintf(w, "agent: %s\n", header.Agent)
	fmt.Fprintf(w, "task_id: %s\n", header.TaskID)
	fmt.Fprintf(w, "mode: %s\n", header.Mode)
	fmt.Fprintf(w, "project: %s\n", header.Project)
	fmt.Fprintf(w, "description: %s\n", singleLine(header.Description))
	fmt.Fprintf(w, "started_at: %s\n", header.StartedAt)
	fmt.Fprintln(w, LogDelimiter)
	if err := w.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write log header: %w", err)
	}
	return f, nil
}

// AppendLogFooter appends the completion block to a task log.
func AppendLogFooter(path string, task *models.AgentTask) error {
	fields := [][2]string{{"status", string(task.Status)}}
	if task.ExitCode != nil {
		fields = append(fields, [2]string{"exit_code", fmt.Sprint(*task.ExitCode)})
	}
	if task.CompletedAt != nil {
		fields = append(fields, [2]string{"completed_at", task.CompletedAt.Format(time.RFC3339)})
		fields = append(fields, [2]string{"duration", task.CompletedAt.Sub(task.StartedAt).Round(time.Second).String()})
	}
	return appendBlock(path, fields)
}

// AppendLogError appends an error block to a task log.
func AppendLogError(path string, cause error) error {
	return appendBlock(path, [][2]string{
		{"error", singleLine(cause.Error())},
		{"at", time.Now().UTC().Format(time.RFC3339)},
	})
}

func appendBlock(path string, fields [][2]string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString("\n" + LogDelimiter + "\n")
	for _, kv := range fields {
		fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
	}
	b.WriteString(LogDelimiter + "\n")
	_, err = f.WriteString(b.String())
	return err
}

// ParseLogHeader reads the first metadata block of a log's content.
// Returns nil if the content has no complete header.
func ParseLogHeader(content string) *models.LogHeader {
	header := &models.LogHeader{}
	inHeader := false

	for _, line := range strings.Split(content, "\n") {
		if line == LogDelimiter {
			if !inHeader {
				inHeader = true
				continue
			}
			return header
		}
		if inHeader {
			parseLogHeaderLine(header, line)
		}
	}
	return nil
}

func parseLogHeaderLine(header *models.LogHeader, line string) {
	parts := strings.SplitN(line, ": ", 2)
	if len(parts) != 2 {
		return
	}
	key := strings.TrimSpace(parts[0])
	val := strings.TrimSpace(parts[1])

	switch key {
	case "agent":
		header.Agent = val
	case "task_id":
		header.TaskID = val
	case "mode":
		header.Mode = val
	case "project":
		header.Project = val
	case "description":
		header.Description = val
	case "started_at":
		header.StartedAt = val
	}
}

// LogDelta is a byte range of a log file beyond a caller's offset.
type LogDelta struct {
	Offset  int64  `json:"offset"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
}

// ReadLogDelta returns the bytes of path starting at offset. Size is the
// offset to request next. An offset at or past the end yields an empty
// delta with the current size. A trailing partial UTF-8 sequence is held
// back until the rest of it is written.
func ReadLogDelta(path string, offset int64) (*LogDelta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if offset < 0 {
		offset = 0
	}
	if offset >= size {
		return &LogDelta{Offset: offset, Size: size}, nil
	}

	buf := make([]byte, size-offset)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	buf = trimPartialRune(buf[:n])
	return &LogDelta{
		Offset:  offset,
		Content: string(buf),
		Size:    offset + int64(len(buf)),
	}, nil
}

// ReadTaskLog is ReadLogDelta with a fallback to the <path>.xz archive once
// retention has compressed the log.
func ReadTaskLog(path string, offset int64) (*LogDelta, error) {
	d, err := ReadLogDelta(path, offset)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return d, err
	}

	content, aerr := ReadArchivedLog(path + ".xz")
	if aerr != nil {
		return nil, err
	}
	size := int64(len(content))
	if offset < 0 {
		offset = 0
	}
	if offset >= size {
		return &LogDelta{Offset: offset, Size: size}, nil
	}
	return &LogDelta{Offset: offset, Content: content[offset:], Size: size}, nil
}

func trimPartialRune(b []byte) []byte {
	// Look back at most UTFMax-1 bytes for the start of the last rune.
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return b
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}

// ArchiveLog compresses a log to <path>.xz and removes the original.
func ArchiveLog(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dstPath := path + ".xz"
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	zw, err := xz.NewWriter(dst)
	if err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		dst.Close()
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to compress %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return "", err
	}

	src.Close()
	if err := os.Remove(path); err != nil {
		return dstPath, err
	}
	return dstPath, nil
}

// ReadArchivedLog decompresses an archive written by ArchiveLog.
func ReadArchivedLog(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zr, err := xz.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to open xz stream: %w", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
