package ws

import (
	"context"
	"errors"
	"sync"
)

// RuntimeClient owns one live connection's outbound path: sends go through a
// buffered channel drained by a single write loop, so broadcaster fan-out
// never blocks on a slow socket.
type RuntimeClient struct {
	ctx    context.Context
	cancel context.CancelFunc
	ws     *WebSocket
	connID string
	out    chan []byte
	once   sync.Once
}

func NewClient(parent context.Context, ws *WebSocket, connID string) *RuntimeClient {
	ctx, cancel := context.WithCancel(parent)
	c := &RuntimeClient{
		ctx:    ctx,
		cancel: cancel,
		ws:     ws,
		connID: connID,
		out:    make(chan []byte, 256),
	}
	go c.writeLoop()
	return c
}

// ErrClientClosed is returned by Send once the client has been closed.
var ErrClientClosed = errors.New("client closed")

func (c *RuntimeClient) ConnectionID() string { return c.connID }

// Send is safe to call concurrently with Close: the outbound channel is never
// closed, so a send that races a teardown either lands in the buffer (and is
// dropped with it) or returns ErrClientClosed.
func (c *RuntimeClient) Send(ctx context.Context, data []byte) error {
	if c.ctx.Err() != nil {
		return ErrClientClosed
	}
	select {
	case c.out <- data:
		return nil
	case <-c.ctx.Done():
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *RuntimeClient) Close() {
	c.once.Do(func() {
		c.cancel()
		c.ws.Close()
	})
}

func (c *RuntimeClient) writeLoop() {
	defer c.Close()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.out:
			_ = c.ws.WriteMessage(data)
		}
	}
}
