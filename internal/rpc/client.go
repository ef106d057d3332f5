package rpc

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// Client is a minimal caller over the wire protocol, used by
// internal/diag and by tests; real production clients are expected to be
// separate processes (spec §1's "remote-procedure boundary... client
// processes") speaking the same framing directly. A single background
// goroutine reads every frame off the connection so unsolicited Push
// notifications are delivered as soon as they arrive, independent of
// whether a Call is currently in flight.
type Client struct {
	nc     net.Conn
	nextID uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	waiters map[uint64]chan Response
	closed  bool

	onPush func(Push)
}

// Dial connects to an audio server's unix-domain RPC socket and starts
// its background read loop.
func Dial(socketPath string) (*Client, error) {
	nc, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	c := &Client{nc: nc, waiters: make(map[uint64]chan Response)}
	go c.readLoop()
	return c, nil
}

// OnPush registers a callback for every unsolicited Push frame (ID==0).
// Safe to call at any time; takes effect for pushes received after the
// call.
func (c *Client) OnPush(fn func(Push)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPush = fn
}

func (c *Client) readLoop() {
	for {
		var raw struct {
			ID      uint64          `json:"id"`
			Event   string          `json:"event"`
			Error   string          `json:"error"`
			Result  json.RawMessage `json:"result"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := readFrame(c.nc, &raw); err != nil {
			c.mu.Lock()
			c.closed = true
			waiters := c.waiters
			c.waiters = make(map[uint64]chan Response)
			c.mu.Unlock()
			for _, ch := range waiters {
				close(ch)
			}
			return
		}

		if raw.ID == 0 {
			c.mu.Lock()
			fn := c.onPush
			c.mu.Unlock()
			if fn != nil {
				fn(Push{ID: 0, Event: raw.Event, Payload: raw.Payload})
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.waiters[raw.ID]
		delete(c.waiters, raw.ID)
		c.mu.Unlock()
		if ok {
			ch <- Response{ID: raw.ID, Result: raw.Result, Error: raw.Error}
		}
	}
}

// Call sends method(params) and blocks for the matching Response.
func (c *Client) Call(method string, params any, result any) error {
	id := atomic.AddUint64(&c.nextID, 1)
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	ch := make(chan Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("rpc: connection closed")
	}
	c.waiters[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err = writeFrame(c.nc, Request{ID: id, Method: method, Params: body})
	c.writeMu.Unlock()
	if err != nil {
		return err
	}

	resp, ok := <-ch
	if !ok {
		return fmt.Errorf("rpc: connection closed while awaiting response")
	}
	return finish(resp, result)
}

func finish(resp Response, result any) error {
	if resp.Error != "" {
		return fmt.Errorf("rpc: %s", resp.Error)
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, result)
}

// Close closes the underlying connection, unblocking any pending Call.
func (c *Client) Close() error { return c.nc.Close() }
