package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"devicepair/internal/adapter/gateway"
	"devicepair/internal/domain"
)

// ErrClosed is returned by calls made after the connection dropped.
var ErrClosed = errors.New("surface connection closed")

// Client is a websocket connection to the setup gateway. Bus events arrive
// on Events; RPCs are matched to their responses by frame ID.
type Client struct {
	ws     *websocket.Conn
	events chan domain.Event
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan gateway.Frame
	done    chan struct{}
	err     error

	quit      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the gateway at addr (host:port).
func Dial(ctx context.Context, addr, token string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	ws, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	c := &Client{
		ws:      ws,
		events:  make(chan domain.Event, 64),
		pending: make(map[uint64]chan gateway.Frame),
		done:    make(chan struct{}),
		quit:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers forwarded bus events. The channel closes when the
// connection drops.
func (c *Client) Events() <-chan domain.Event {
	return c.events
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Call invokes an RPC method and waits for its result.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		raw = b
	}

	id := c.nextID.Add(1)
	ch := make(chan gateway.Frame, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := wsjson.Write(ctx, c.ws, gateway.Frame{Type: gateway.FrameTypeRequest, ID: id, Method: method, Payload: raw}); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, errors.New(resp.Error)
		}
		return resp.Payload, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Command publishes an inbound setup command through the gateway.
func (c *Client) Command(ctx context.Context, t domain.EventType, payload any) error {
	params := gateway.CommandParams{Type: string(t)}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal command: %w", err)
		}
		params.Payload = b
	}
	_, err := c.Call(ctx, gateway.MethodCommand, params)
	return err
}

// Close ends the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.quit) })
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var f gateway.Frame
		if err := wsjson.Read(context.Background(), c.ws, &f); err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			close(c.done)
			return
		}
		switch f.Type {
		case gateway.FrameTypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case gateway.FrameTypeEvent:
			var ev domain.Event
			if err := json.Unmarshal(f.Payload, &ev); err != nil {
				continue
			}
			select {
			case c.events <- ev:
			case <-c.quit:
			}
		}
	}
}
