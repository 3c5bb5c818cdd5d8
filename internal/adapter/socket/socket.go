package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"botbridge/internal/client"
	"botbridge/internal/config"
	"botbridge/internal/domain"
	"botbridge/internal/httpapi"

	"github.com/gorilla/websocket"
)

// Adapter implements the duplex socket transport: many concurrent
// connections, each bound to a logical user room so one user may hold
// several connections at once.
type Adapter struct {
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
	index    atomic.Int64

	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[string]map[string]*Conn
}

// Conn is one live connection. Writes are serialized per connection.
type Conn struct {
	id   string
	user string
	ws   *websocket.Conn
	mu   sync.Mutex
}

// ID reports the generated connection index.
func (c *Conn) ID() string { return c.id }

func (c *Conn) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// New builds the adapter, filling unset fields from defaults.
func New(cfg config.WebSocketConfig) *Adapter {
	if cfg.Namespace == "" {
		cfg.Namespace = "websocket"
	}
	return &Adapter{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // origin policy belongs to the deployment proxy
			},
		},
		conns: make(map[string]*Conn),
		rooms: make(map[string]map[string]*Conn),
	}
}

func (a *Adapter) Name() string { return a.cfg.Namespace }

// Validate fails fast when the adapter id is missing; synthesized message
// ids embed it.
func (a *Adapter) Validate() error {
	if a.cfg.ID == "" {
		return &domain.ConfigError{Adapter: "websocket", Field: "id"}
	}
	return nil
}

// HandleWebhook exists to satisfy the adapter contract; socket traffic
// arrives on the upgrade endpoint instead.
func (a *Adapter) HandleWebhook(_ *client.Client, w http.ResponseWriter, _ *http.Request, _ []byte) {
	http.Error(w, "Not Found", http.StatusNotFound)
}

// RegisterRoutes mounts the upgrade endpoint on the client's namespace.
func (a *Adapter) RegisterRoutes(c *client.Client, ns *httpapi.Namespace) {
	ns.Get("/connect", func(w http.ResponseWriter, r *http.Request, _ []byte) {
		a.handleUpgrade(c, w, r)
	})
}

// InboundMessage is the JSON protocol for inbound socket frames. Every
// frame names its logical user.
type InboundMessage struct {
	User        string              `json:"user"`
	Text        string              `json:"text,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

type outboundFrame struct {
	Type         string                 `json:"type"`
	Message      *domain.MessageContent `json:"message,omitempty"`
	SenderAction string                 `json:"sender_action,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

func (a *Adapter) handleUpgrade(c *client.Client, w http.ResponseWriter, r *http.Request) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.Logger().Error("websocket upgrade failed", "err", err)
		return
	}

	conn := &Conn{
		id: fmt.Sprintf("%d", a.index.Add(1)),
		ws: ws,
	}
	a.mu.Lock()
	a.conns[conn.id] = conn
	a.mu.Unlock()
	c.Logger().Info("websocket client connected", "conn", conn.id)

	defer func() {
		a.drop(conn)
		ws.Close()
		c.Logger().Info("websocket client disconnected", "conn", conn.id)
	}()

	if user := r.URL.Query().Get("user"); user != "" {
		a.join(conn, user)
	}

	a.readLoop(r.Context(), c, conn)
}

func (a *Adapter) readLoop(ctx context.Context, c *client.Client, conn *Conn) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Logger().Error("websocket read error", "conn", conn.id, "err", err)
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Logger().Warn("invalid websocket message", "conn", conn.id, "err", err)
			continue
		}
		if msg.User == "" {
			c.Logger().Warn("websocket message without user", "conn", conn.id)
			continue
		}

		a.join(conn, msg.User)
		if err := c.ReceivedUpdateWithConn(ctx, &msg, conn); err != nil {
			c.Logger().Error("websocket update dispatch failed", "err", err)
			// The connection is live, so the sender can observe the drop.
			var de *domain.DispatchError
			if errors.As(err, &de) {
				if werr := conn.write(outboundFrame{Type: "error", Error: de.Error()}); werr != nil {
					c.Logger().Warn("websocket error frame not delivered", "conn", conn.id, "err", werr)
				}
			}
		}
	}
}

// join places conn in the user's room, moving it when the user changes.
func (a *Adapter) join(conn *Conn, user string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if conn.user == user {
		return
	}
	if conn.user != "" {
		delete(a.rooms[conn.user], conn.id)
	}
	conn.user = user
	room := a.rooms[user]
	if room == nil {
		room = make(map[string]*Conn)
		a.rooms[user] = room
	}
	room[conn.id] = conn
}

func (a *Adapter) drop(conn *Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, conn.id)
	if conn.user != "" {
		delete(a.rooms[conn.user], conn.id)
	}
}

// FormatUpdate normalizes one inbound frame, synthesizing a message id
// since the transport has none.
func (a *Adapter) FormatUpdate(raw any) (*domain.Update, error) {
	msg, ok := raw.(*InboundMessage)
	if !ok {
		return nil, fmt.Errorf("websocket: unexpected raw update type %T", raw)
	}

	ts := time.Now().UnixMilli()
	return &domain.Update{
		Raw:       msg,
		Sender:    domain.Party{ID: msg.User},
		Recipient: domain.Party{ID: a.cfg.ID},
		Timestamp: ts,
		Message: domain.IncomingMessage{
			MID:         a.messageID(msg.User, ts),
			Seq:         nil, // no sequence concept on this transport
			Text:        msg.Text,
			Attachments: msg.Attachments,
		},
	}, nil
}

func (a *Adapter) messageID(userID string, ts int64) string {
	return fmt.Sprintf("%s.%s.%d", a.cfg.ID, userID, ts)
}

// SendTransport pushes the message body to every connection in the
// recipient's room. The recipient envelope is transport routing, not
// payload, so it is stripped before emission; the result is synthetic since
// there is no delivery acknowledgement to wait on.
func (a *Adapter) SendTransport(_ context.Context, msg *domain.OutgoingMessage) (*domain.SendResult, error) {
	frame := outboundFrame{Type: "message", Message: msg.Message}
	if msg.SenderAction != "" {
		frame = outboundFrame{Type: "typing", SenderAction: msg.SenderAction}
	}

	a.mu.RLock()
	room := make([]*Conn, 0, len(a.rooms[msg.Recipient.ID]))
	for _, conn := range a.rooms[msg.Recipient.ID] {
		room = append(room, conn)
	}
	a.mu.RUnlock()

	for _, conn := range room {
		if err := conn.write(frame); err != nil {
			return nil, &domain.TransportError{Platform: "websocket", Err: err}
		}
	}

	result := &domain.SendResult{RecipientID: msg.Recipient.ID}
	if msg.SenderAction == "" {
		result.MessageID = a.messageID(msg.Recipient.ID, time.Now().UnixMilli())
	}
	return result, nil
}

// CloseAll drops every live connection, for shutdown.
func (a *Adapter) CloseAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, conn := range a.conns {
		conn.ws.Close()
		delete(a.conns, id)
		if conn.user != "" {
			delete(a.rooms[conn.user], conn.id)
		}
	}
}
