package logstream

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Client follows a remote /ws/logs stream.
type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn *websocket.Conn
}

// NewClient creates a client for the websocket endpoint at url.
func NewClient(url string, reconnectDelay, pingInterval time.Duration) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 2 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{url: url, reconnectDelay: reconnectDelay, pingInterval: pingInterval}
}

// Connect dials the stream.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("logstream connect: %w", err)
	}
	c.conn = conn
	return nil
}

// Read streams lines until ctx ends or the connection fails. Both channels
// are closed when the read loop exits.
func (c *Client) Read(ctx context.Context) (<-chan string, <-chan error) {
	lines := make(chan string, 256)
	errc := make(chan error, 1)
	conn := c.conn
	done := make(chan struct{})

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if conn == nil {
					return
				}
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			}
		}
	}()

	// read loop
	go func() {
		defer close(lines)
		defer close(errc)
		defer close(done)
		if conn == nil {
			errc <- fmt.Errorf("logstream: not connected")
			return
		}
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errc <- fmt.Errorf("logstream read: %w", err)
				}
				return
			}
			select {
			case lines <- string(b):
			case <-ctx.Done():
				return
			}
		}
	}()

	return lines, errc
}

// Follow connects and calls fn for every line, reconnecting after read
// failures until ctx is cancelled.
func (c *Client) Follow(ctx context.Context, fn func(string)) error {
	for {
		if err := c.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		lines, errc := c.Read(ctx)
		for line := range lines {
			fn(line)
		}
		err := <-errc
		_ = c.Close()
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
