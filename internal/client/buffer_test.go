package client

import (
	"errors"
	"testing"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/models"
)

func snapshot(content string) *models.StreamFrame {
	return &models.StreamFrame{Type: models.FrameSnapshot, Content: content, Size: int64(len(content))}
}

func delta(offset int64, content string) *models.StreamFrame {
	return &models.StreamFrame{Type: models.FrameDelta, Offset: offset, Content: content, Size: offset + int64(len(content))}
}

func TestLogBufferApply(t *testing.T) {
	tests := []struct {
		name    string
		frames  []*models.StreamFrame
		want    string
		wantErr error
	}{
		{"snapshot", []*models.StreamFrame{snapshot("abc")}, "abc", nil},
		{"append", []*models.StreamFrame{snapshot("abc"), delta(3, "def")}, "abcdef", nil},
		{"duplicate delta", []*models.StreamFrame{snapshot("abc"), delta(3, "def"), delta(3, "def")}, "abcdef", nil},
		{"overlap appends tail", []*models.StreamFrame{snapshot("abc"), delta(1, "bcdef")}, "abcdef", nil},
		{"stale delta", []*models.StreamFrame{snapshot("abcdef"), delta(0, "abc")}, "abcdef", nil},
		{"snapshot replaces", []*models.StreamFrame{snapshot("abcdef"), snapshot("x")}, "x", nil},
		{"keepalive ignored", []*models.StreamFrame{snapshot("abc"), {Type: models.FrameKeepalive}}, "abc", nil},
		{"gap", []*models.StreamFrame{snapshot("abc"), delta(5, "xyz")}, "abc", ErrGap},
		{"delta before snapshot", []*models.StreamFrame{delta(0, "abc")}, "abc", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewLogBuffer("t1")
			var err error
			for _, f := range tt.frames {
				if _, err = b.Apply(f); err != nil {
					break
				}
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if got := b.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if b.Len() != int64(len(tt.want)) {
				t.Errorf("Len() = %d, want %d", b.Len(), len(tt.want))
			}
		})
	}
}

func TestLogBufferApplyIdempotent(t *testing.T) {
	frames := []*models.StreamFrame{snapshot("head\n"), delta(5, "one\n"), delta(9, "two\n")}

	once := NewLogBuffer("t1")
	for _, f := range frames {
		if _, err := once.Apply(f); err != nil {
			t.Fatal(err)
		}
	}
	twice := NewLogBuffer("t1")
	for _, f := range frames {
		for i := 0; i < 2; i++ {
			if _, err := twice.Apply(f); err != nil {
				t.Fatal(err)
			}
		}
	}
	if once.String() != twice.String() {
		t.Errorf("redelivered frames gave %q, want %q", twice.String(), once.String())
	}
}

func TestLogBufferChanged(t *testing.T) {
	b := NewLogBuffer("t1")
	if changed, _ := b.Apply(snapshot("abc")); !changed {
		t.Error("first snapshot reported unchanged")
	}
	if changed, _ := b.Apply(snapshot("abc")); changed {
		t.Error("identical snapshot reported changed")
	}
	if changed, _ := b.ApplyDelta(&config.LogDelta{Offset: 3, Content: "", Size: 3}); changed {
		t.Error("empty delta reported changed")
	}
	if changed, _ := b.ApplyDelta(&config.LogDelta{Offset: 3, Content: "d", Size: 4}); !changed {
		t.Error("new bytes reported unchanged")
	}
}
