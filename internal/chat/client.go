package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/decimalcoins/broom-chat/internal/auth"
	"github.com/decimalcoins/broom-chat/internal/models"
	"github.com/decimalcoins/broom-chat/internal/payment"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one browser tab. It owns the tab's controller and relays the
// Pi SDK through its bridge.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	User models.User

	send   chan []byte
	mu     sync.Mutex
	closed bool

	ctrl    *Controller
	bridge  *Bridge
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// presenceRoom is only touched from readPump.
	presenceRoom string
}

func ServeWS(hub *Hub, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateToken(token, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		user := models.User{ID: claims.UserID, Username: claims.Username, Role: models.RoleUser}
		if hub.svc.Users != nil {
			stored, err := hub.svc.Users.UpsertUser(r.Context(), claims.UserID, claims.Username)
			if err != nil {
				slog.Error("failed to upsert user", "error", err, "user_id", claims.UserID)
				http.Error(w, "user store unavailable", http.StatusServiceUnavailable)
				return
			}
			user = *stored
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}

		client := newClient(hub, conn, user)
		if !hub.add(client) {
			conn.Close()
			return
		}
		go client.writePump()
		go client.readPump()
	}
}

func newClient(hub *Hub, conn *websocket.Conn, user models.User) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		hub:     hub,
		conn:    conn,
		User:    user,
		send:    make(chan []byte, 256),
		limiter: rate.NewLimiter(hub.svc.RateLimit, hub.svc.RateBurst),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.bridge = NewBridge(c.queue)
	c.ctrl = NewController(user, Deps{
		Messages: hub.svc.Messages,
		Rooms:    hub.svc.Rooms,
		Accounts: hub.svc.Accounts,
		Feed:     hub.svc.Feed,
		Payments: payment.NewAdapter(c.bridge, payment.WithTimeout(hub.svc.PaymentTimeout)),
		View:     c,
	})
	return c
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("ws read error", "error", err, "user_id", c.User.ID)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("malformed frame", "INVALID_PAYLOAD")
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage runs on the read goroutine. Anything that waits on a payment
// goes to its own goroutine, since the payment callbacks arrive here too.
func (c *Client) handleMessage(msg WSMessage) {
	switch msg.Type {
	case TypeHello:
		var p HelloPayload
		if !c.decode(msg, &p) {
			return
		}
		c.bridge.SetAvailable(p.PiAvailable, p.Sandbox)
		slog.Info("client hello", "user_id", c.User.ID, "pi_available", p.PiAvailable, "sandbox", p.Sandbox)

	case TypeRoomSelect:
		var p RoomPayload
		if !c.allow() || !c.decode(msg, &p) {
			return
		}
		c.selectRoom(p.RoomID)

	case TypeMessageSend:
		var p SendMessagePayload
		if !c.allow() || !c.decode(msg, &p) {
			return
		}
		c.ctrl.SendText(c.ctx, p.Content)

	case TypeVideoSend:
		var p VideoPayload
		if !c.allow() || !c.decode(msg, &p) {
			return
		}
		c.ctrl.SendVideo(c.ctx, p.URL)

	case TypeGifSend:
		var p GifPayload
		if !c.allow() || !c.decode(msg, &p) {
			return
		}
		c.async(func(ctx context.Context) { c.ctrl.SendGif(ctx, p.GifID) })

	case TypeRoleUpgrade:
		if !c.allow() {
			return
		}
		c.async(func(ctx context.Context) { c.ctrl.UpgradeRole(ctx) })

	case TypePaymentApproval, TypePaymentCompletion, TypePaymentCancel, TypePaymentError:
		var p PaymentCallbackPayload
		if !c.decode(msg, &p) {
			return
		}
		if !c.bridge.Dispatch(msg.Type, p) {
			c.sendError("unknown payment request", "UNKNOWN_PAYMENT")
		}

	case TypePing:
		if c.presenceRoom != "" && c.hub.svc.Presence != nil {
			if err := c.hub.svc.Presence.Refresh(c.ctx, c.presenceRoom); err != nil {
				slog.Warn("presence refresh failed", "error", err, "room_id", c.presenceRoom)
			}
			c.pushPresence(c.presenceRoom)
		}
		c.push(TypePong, nil)

	default:
		c.sendError("unknown message type", "UNKNOWN_TYPE")
	}
}

func (c *Client) selectRoom(roomID string) {
	err := c.ctrl.SelectRoom(c.ctx, roomID)
	room := c.ctrl.Room()
	if room == nil || room.ID == c.presenceRoom {
		return
	}
	if err != nil {
		slog.Warn("room selected without live updates", "error", err, "room_id", room.ID)
	}

	presence := c.hub.svc.Presence
	if presence == nil {
		return
	}
	if c.presenceRoom != "" {
		if err := presence.Leave(c.ctx, c.presenceRoom, c.User.ID); err != nil {
			slog.Warn("presence leave failed", "error", err, "room_id", c.presenceRoom)
		}
	}
	c.presenceRoom = room.ID
	if err := presence.Join(c.ctx, room.ID, c.User.ID); err != nil {
		slog.Warn("presence join failed", "error", err, "room_id", room.ID)
	}
	c.pushPresence(room.ID)
}

func (c *Client) pushPresence(roomID string) {
	n, err := c.hub.svc.Presence.Online(c.ctx, roomID)
	if err != nil {
		slog.Warn("presence count failed", "error", err, "room_id", roomID)
		return
	}
	c.push(TypePresenceUpdate, PresenceUpdatePayload{RoomID: roomID, Online: n})
}

func (c *Client) async(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

func (c *Client) allow() bool {
	if c.limiter.Allow() {
		return true
	}
	c.sendError("too many requests, slow down", "RATE_LIMITED")
	return false
}

func (c *Client) decode(msg WSMessage, v interface{}) bool {
	if len(msg.Payload) == 0 {
		msg.Payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		c.sendError("invalid payload for "+msg.Type, "INVALID_PAYLOAD")
		return false
	}
	return true
}

// shutdown settles pending payments, waits for payment goroutines and drops
// the room subscription and presence.
func (c *Client) shutdown() {
	c.cancel()
	c.bridge.Close()
	c.wg.Wait()
	c.ctrl.Close()

	if c.presenceRoom != "" && c.hub.svc.Presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.hub.svc.Presence.Leave(ctx, c.presenceRoom, c.User.ID); err != nil {
			slog.Warn("presence leave failed", "error", err, "room_id", c.presenceRoom)
		}
		c.presenceRoom = ""
	}
}

func (c *Client) queue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		slog.Warn("client send buffer full, dropping frame", "user_id", c.User.ID)
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) push(msgType string, payload interface{}) {
	data, err := NewWSMessage(msgType, payload)
	if err != nil {
		slog.Error("failed to encode frame", "error", err, "type", msgType)
		return
	}
	c.queue(data)
}

func (c *Client) sendError(message, code string) {
	c.push(TypeError, ErrorPayload{Message: message, Code: code})
}

func (c *Client) RoomLoaded(room models.Room, messages []models.Message) {
	c.push(TypeRoomHistory, RoomHistoryPayload{Room: room, Messages: messages})
}

func (c *Client) MessageAdded(msg models.Message) {
	c.push(TypeMessageNew, msg)
}

func (c *Client) RoleUpdated(user models.User) {
	c.push(TypeRoleUpdated, user)
}

func (c *Client) Notify(n Notification) {
	c.push(TypeNotification, n)
}
