package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/models"
	"github.com/watchfire-io/agentwatch/internal/transcript"
)

// ErrGap is returned when a delta starts beyond the bytes already held.
// The caller refills from the HTTP delta read.
var ErrGap = errors.New("log delta leaves a gap")

// LogBuffer reassembles a task log from stream frames. Delivery is
// at-least-once, so applying the same frame twice is a no-op.
type LogBuffer struct {
	taskID string
	data   []byte
}

// NewLogBuffer creates an empty buffer for a task.
func NewLogBuffer(taskID string) *LogBuffer {
	return &LogBuffer{taskID: taskID}
}

// Len returns the number of bytes held, the next offset to request.
func (b *LogBuffer) Len() int64 {
	return int64(len(b.data))
}

// String returns the reassembled log.
func (b *LogBuffer) String() string {
	return string(b.data)
}

// Events parses the reassembled log.
func (b *LogBuffer) Events() []transcript.Event {
	return transcript.Parse(string(b.data))
}

// Apply folds a frame into the buffer and reports whether the content
// changed. Snapshots replace; deltas append only bytes not yet held.
func (b *LogBuffer) Apply(f *models.StreamFrame) (bool, error) {
	switch f.Type {
	case models.FrameSnapshot:
		changed := string(b.data) != f.Content
		b.data = append(b.data[:0], f.Content...)
		return changed, nil
	case models.FrameDelta:
		return b.appendAt(f.Offset, f.Content)
	}
	return false, nil
}

// ApplyDelta folds an HTTP delta read into the buffer.
func (b *LogBuffer) ApplyDelta(d *config.LogDelta) (bool, error) {
	return b.appendAt(d.Offset, d.Content)
}

func (b *LogBuffer) appendAt(offset int64, content string) (bool, error) {
	have := int64(len(b.data))
	if offset > have {
		return false, fmt.Errorf("%w: have %d bytes, delta starts at %d", ErrGap, have, offset)
	}
	end := offset + int64(len(content))
	if end <= have {
		return false, nil
	}
	b.data = append(b.data, content[have-offset:]...)
	return true, nil
}

// Refill reads everything past the buffer's end over HTTP. Used after
// Apply reports ErrGap.
func (b *LogBuffer) Refill(ctx context.Context, c *Client) (bool, error) {
	d, err := c.LogDelta(ctx, b.taskID, b.Len())
	if err != nil {
		return false, err
	}
	if d.Size < b.Len() {
		// The log shrank; start over.
		d, err = c.LogDelta(ctx, b.taskID, 0)
		if err != nil {
			return false, err
		}
		b.data = b.data[:0]
		_, err = b.ApplyDelta(d)
		return true, err
	}
	return b.ApplyDelta(d)
}
