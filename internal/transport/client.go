package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/villagers/internal/snapshot"
)

// Client consumes the snapshot stream from a running simulation.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to a broadcaster's /ws endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Next blocks until the next frame arrives.
func (c *Client) Next() (snapshot.Frame, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return snapshot.Frame{}, fmt.Errorf("read frame: %w", err)
	}

	var frame snapshot.Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return snapshot.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return frame, nil
}

// Close closes the connection politely.
func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
