package websocket

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/castlab/studiocast/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 64 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
)

type MessageHandler func(message []byte, err error)

// WS wraps a gorilla websocket connection with serialized
// read/write pumps and a shutdown sequence.
type WS struct {
	conn *websocket.Conn
	send chan []byte
	log  *logger.Logger

	OnMessage MessageHandler

	// server sockets ping, client sockets pong
	pingPong bool
	isServer bool

	once   sync.Once
	closed chan struct{}
	done   chan struct{}
}

var DefaultUpgrader = Upgrader{websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
}}

type Upgrader struct {
	websocket.Upgrader
}

// NewUpgrader makes an upgrader which accepts connections
// from the given origin only. An empty origin allows any.
func NewUpgrader(origin string) *Upgrader {
	u := Upgrader{websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteBufferPool: &sync.Pool{},
	}}
	if origin != "" {
		u.CheckOrigin = func(r *http.Request) bool { return r.Header.Get("Origin") == origin }
	} else {
		u.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return &u
}

func NewServerWithConn(conn *websocket.Conn, log *logger.Logger) (*WS, error) {
	return newSocket(conn, true, log), nil
}

func NewClient(address url.URL, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, log), nil
}

func newSocket(conn *websocket.Conn, isServer bool, log *logger.Logger) *WS {
	return &WS{
		conn:     conn,
		send:     make(chan []byte, 64),
		log:      log,
		pingPong: isServer,
		isServer: isServer,
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (ws *WS) IsServer() bool { return ws.isServer }

func (ws *WS) SetMessageHandler(fn MessageHandler) { ws.OnMessage = fn }

// Listen starts the socket pumps.
// The returned channel closes when the connection is fully torn down.
func (ws *WS) Listen() chan struct{} {
	go ws.writer()
	go ws.reader()
	return ws.done
}

// reader pumps messages from the websocket connection to the OnMessage
// callback. Serializes all websocket reads.
func (ws *WS) reader() {
	defer ws.shutdown()
	ws.conn.SetReadLimit(maxMessageSize)
	if ws.pingPong {
		_ = ws.conn.SetReadDeadline(time.Now().Add(pongTime))
		ws.conn.SetPongHandler(func(string) error {
			return ws.conn.SetReadDeadline(time.Now().Add(pongTime))
		})
	}
	for {
		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Debug().Err(err).Msg("socket read fail")
			}
			return
		}
		if ws.OnMessage != nil {
			ws.OnMessage(message, nil)
		}
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Serializes all websocket writes.
func (ws *WS) writer() {
	ticker := time.NewTicker(pingTime)
	defer ticker.Stop()
	for {
		select {
		case message := <-ws.send:
			if err := ws.write(websocket.TextMessage, message); err != nil {
				ws.shutdown()
				return
			}
		case <-ticker.C:
			if !ws.pingPong {
				continue
			}
			if err := ws.write(websocket.PingMessage, nil); err != nil {
				ws.shutdown()
				return
			}
		case <-ws.closed:
			_ = ws.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (ws *WS) write(t int, message []byte) error {
	if err := ws.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.conn.WriteMessage(t, message)
}

// Write queues a message for sending.
// Messages are dropped when the connection is closing.
func (ws *WS) Write(data []byte) {
	select {
	case ws.send <- data:
	case <-ws.closed:
	}
}

func (ws *WS) Close() { ws.shutdown() }

func (ws *WS) shutdown() {
	ws.once.Do(func() {
		close(ws.closed)
		_ = ws.conn.Close()
		close(ws.done)
	})
}
