package com

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/castlab/studiocast/pkg/api"
	"github.com/castlab/studiocast/pkg/logger"
	"github.com/castlab/studiocast/pkg/network/websocket"
	"github.com/goccy/go-json"
)

type (
	// Connector makes packet clients for both sides of the wire.
	Connector struct {
		tag string
		wu  *websocket.Upgrader
	}
	// Client is a JSON packet layer over a websocket connection.
	// Packets with a non-empty id are tracked as synchronous calls.
	Client struct {
		conn     *websocket.WS
		queue    map[string]*call
		onPacket func(packet api.In)
		mu       sync.Mutex
		log      *logger.Logger
	}
	call struct {
		done     chan struct{}
		err      error
		Response api.In
	}
	Option = func(c *Connector)
)

var (
	ErrConnClosed = errors.New("connection closed")
	ErrTimeout    = errors.New("timeout")
)

const callTimeout = 5 * time.Second

func WithOrigin(origin string) Option {
	return func(c *Connector) { c.wu = websocket.NewUpgrader(origin) }
}
func WithTag(tag string) Option { return func(c *Connector) { c.tag = tag } }

func NewConnector(opts ...Option) *Connector {
	c := &Connector{}
	for _, opt := range opts {
		opt(c)
	}
	if c.wu == nil {
		c.wu = &websocket.DefaultUpgrader
	}
	return c
}

func (co *Connector) NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*Client, error) {
	ws, err := co.wu.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn, err := websocket.NewServerWithConn(ws, log)
	return connect(conn, log, err)
}

func (co *Connector) NewClient(address url.URL, log *logger.Logger) (*Client, error) {
	conn, err := websocket.NewClient(address, log)
	return connect(conn, log, err)
}

func connect(conn *websocket.WS, log *logger.Logger, err error) (*Client, error) {
	if err != nil {
		return nil, err
	}
	client := &Client{conn: conn, queue: make(map[string]*call, 1), log: log}
	client.conn.SetMessageHandler(client.handleMessage)
	return client, nil
}

func (c *Client) IsServer() bool { return c.conn.IsServer() }

func (c *Client) OnPacket(fn func(packet api.In)) { c.mu.Lock(); c.onPacket = fn; c.mu.Unlock() }

// Listen starts the connection pumps.
// The returned channel closes on disconnect.
func (c *Client) Listen() chan struct{} { return c.conn.Listen() }

func (c *Client) Close() {
	c.conn.Close()
	c.drain(ErrConnClosed)
}

// Call makes a blocking request and waits for the response payload.
func (c *Client) Call(t api.PT, payload any) ([]byte, error) {
	id := NewUid().String()
	rq := api.Out{Id: id, T: t, Payload: payload}
	r, err := json.Marshal(&rq)
	if err != nil {
		return nil, err
	}

	task := &call{done: make(chan struct{})}
	c.mu.Lock()
	c.queue[id] = task
	c.mu.Unlock()
	c.log.Debug().Str(logger.DirectionField, "→").Msgf("ᵇ%v", t)
	c.conn.Write(r)
	select {
	case <-task.done:
	case <-time.After(callTimeout):
		task.err = ErrTimeout
	}
	return task.Response.Payload, task.err
}

// Notify just sends a message and goes further.
func (c *Client) Notify(t api.PT, payload any) error {
	return c.SendPacket(api.Out{T: t, Payload: payload})
}

// NotifyTo sends a unicast message addressed to the given session.
func (c *Client) NotifyTo(to string, t api.PT, payload any) error {
	return c.SendPacket(api.Out{T: t, To: to, Payload: payload})
}

// Route responds to the given inbound packet keeping its tracking id.
func (c *Client) Route(in api.In, payload any) error {
	return c.SendPacket(api.Out{Id: in.Id, T: in.T, Payload: payload})
}

// Forward re-sends an inbound packet stamped with the source session id.
func (c *Client) Forward(in api.In, from string) error {
	return c.SendPacket(api.Out{Id: in.Id, T: in.T, From: from, Payload: in.Payload})
}

func (c *Client) SendPacket(packet api.Out) error {
	r, err := json.Marshal(&packet)
	if err != nil {
		return err
	}
	c.log.Debug().Str(logger.DirectionField, "→").Msgf("%v", packet.T)
	c.conn.Write(r)
	return nil
}

func (c *Client) handleMessage(message []byte, err error) {
	if err != nil {
		return
	}

	var res api.In
	if err = json.Unmarshal(message, &res); err != nil {
		c.log.Error().Err(err).Msg("broken packet")
		return
	}

	// non-empty id implies a tracked (awaited) response
	if res.Id != "" {
		if task := c.pop(res.Id); task != nil {
			task.Response = res
			close(task.done)
			return
		}
	}
	c.mu.Lock()
	fn := c.onPacket
	c.mu.Unlock()
	if fn != nil {
		c.log.Debug().Str(logger.DirectionField, "←").Msgf("%v", res.T)
		fn(res)
	}
}

// pop extracts and removes a task from the queue by its id.
func (c *Client) pop(id string) *call {
	c.mu.Lock()
	task := c.queue[id]
	delete(c.queue, id)
	c.mu.Unlock()
	return task
}

// drain cancels all what's left in the task queue.
func (c *Client) drain(err error) {
	c.mu.Lock()
	for id, task := range c.queue {
		if task.err == nil {
			task.err = err
		}
		close(task.done)
		delete(c.queue, id)
	}
	c.mu.Unlock()
}
