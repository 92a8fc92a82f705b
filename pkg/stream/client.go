// Package stream adapts a websocket connection into a hub connection with a bounded outbound
// queue.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrClosed     = errors.New("stream closed")
	ErrBufferFull = errors.New("stream send buffer full")
)

type Options struct {
	// SendBuffer is the number of messages queued before the client counts as too slow.
	SendBuffer int
	// WriteTimeout bounds each websocket write.
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

// Client owns one websocket. Send only queues; the write pump does the network I/O.
type Client struct {
	conn *websocket.Conn
	opts Options

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		conn: conn,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues msg without blocking.
func (c *Client) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readPump() error {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("failed to read message: %w", err)
			}
			return nil
		}
	}
}

func (c *Client) write(msg []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (c *Client) writePump(ctx context.Context) error {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return err
			}
		case <-c.done:
			return nil
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return nil
		}
	}
}

// Run pumps the connection until the peer goes away, a write fails, the client is closed or
// ctx is cancelled. Inbound frames are read and discarded; reading is how a close from the
// peer is noticed.
func (c *Client) Run(ctx context.Context) {
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer c.Close()
		if err := c.readPump(); err != nil {
			slog.Debug(err.Error())
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer c.Close()
		if err := c.writePump(ctx); err != nil {
			slog.Debug(err.Error())
		}
	}()

	wg.Wait()
}
