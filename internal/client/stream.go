package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/watchfire-io/agentwatch/internal/models"
)

// maxFrameBytes bounds one websocket frame; a snapshot carries a whole log.
const maxFrameBytes = 64 << 20

// SubscribeAgents streams the task list. The channel is closed when ctx
// ends or the connection drops.
func (c *Client) SubscribeAgents(ctx context.Context, project string) (<-chan *models.StreamFrame, error) {
	path := "/api/stream/agents"
	if project != "" {
		path += "?project=" + url.QueryEscape(project)
	}
	return c.subscribe(ctx, path)
}

// SubscribeLog streams one task's log as a snapshot followed by deltas.
// The channel is closed when ctx ends or the connection drops.
func (c *Client) SubscribeLog(ctx context.Context, taskID string) (<-chan *models.StreamFrame, error) {
	return c.subscribe(ctx, "/api/stream/tasks/"+url.PathEscape(taskID)+"/log")
}

func (c *Client) wsURL(path string) string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + path
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + path
	}
	return c.baseURL + path
}

func (c *Client) subscribe(ctx context.Context, path string) (<-chan *models.StreamFrame, error) {
	conn, resp, err := websocket.Dial(ctx, c.wsURL(path), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "not found"}
		}
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}
	conn.SetReadLimit(maxFrameBytes)

	frames := make(chan *models.StreamFrame, 16)
	go func() {
		defer close(frames)
		defer conn.CloseNow()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
					log.Printf("[client] stream %s ended: %v", path, err)
				}
				return
			}
			var f models.StreamFrame
			if err := json.Unmarshal(data, &f); err != nil {
				log.Printf("[client] bad frame on %s: %v", path, err)
				continue
			}
			select {
			case frames <- &f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return frames, nil
}
