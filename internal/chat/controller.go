package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/decimalcoins/broom-chat/internal/database"
	"github.com/decimalcoins/broom-chat/internal/models"
	"github.com/decimalcoins/broom-chat/internal/payment"
	"github.com/decimalcoins/broom-chat/internal/realtime"
)

var (
	ErrNoRoomSelected = errors.New("no room selected")
	ErrUnknownGif     = errors.New("unknown gif")
)

type MessageStore interface {
	FetchHistory(ctx context.Context, roomID string) ([]models.Message, error)
	Append(ctx context.Context, p models.NewMessage) (*models.Message, error)
}

type RoomStore interface {
	GetRoom(ctx context.Context, id string) (*models.Room, error)
}

type AccountStore interface {
	SetUserRole(ctx context.Context, id string, role models.Role) error
	RecordPayment(ctx context.Context, p models.Payment) error
}

type Subscription interface {
	Unsubscribe() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, roomID string, onInsert func(models.Message)) (Subscription, error)
}

type Payer interface {
	Pay(ctx context.Context, intent payment.Intent) (*payment.Result, error)
}

// View receives everything the controller wants the user to see.
// Calls are made without the controller's lock held.
type View interface {
	RoomLoaded(room models.Room, messages []models.Message)
	MessageAdded(msg models.Message)
	RoleUpdated(user models.User)
	Notify(n Notification)
}

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

type Notification struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type Deps struct {
	Messages MessageStore
	Rooms    RoomStore
	Accounts AccountStore
	Feed     Subscriber
	Payments Payer
	View     View
}

// Controller owns the ordered message sequence of the room a user has open.
// Rows reach it from two writers, the send path and the realtime feed, and
// are de-duplicated by id.
type Controller struct {
	messages MessageStore
	rooms    RoomStore
	accounts AccountStore
	feed     Subscriber
	payments Payer
	view     View

	mu   sync.Mutex
	user models.User
	room *models.Room
	sub  Subscription
	// gen increments on every room switch; feed callbacks from older
	// subscriptions compare against it and drop their rows.
	gen  uint64
	msgs []models.Message
	seen map[string]struct{}
}

func NewController(user models.User, deps Deps) *Controller {
	view := deps.View
	if view == nil {
		view = nopView{}
	}
	return &Controller{
		messages: deps.Messages,
		rooms:    deps.Rooms,
		accounts: deps.Accounts,
		feed:     deps.Feed,
		payments: deps.Payments,
		view:     view,
		user:     user,
		seen:     make(map[string]struct{}),
	}
}

func (c *Controller) User() models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Room returns the selected room, or nil.
func (c *Controller) Room() *models.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return nil
	}
	r := *c.room
	return &r
}

// Messages returns a snapshot of the current sequence.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.msgs)
}

// SelectRoom switches to roomID. If the room or its history cannot be loaded
// the previous room stays selected and subscribed.
func (c *Controller) SelectRoom(ctx context.Context, roomID string) error {
	room, err := c.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.notifyError("Room not found", "That room no longer exists")
		} else {
			c.notifyError("Error", "Failed to load the room")
		}
		return err
	}

	history, err := c.messages.FetchHistory(ctx, roomID)
	if err != nil {
		slog.Error("failed to fetch history", "error", err, "room_id", roomID)
		c.notifyError("Error", "Failed to load messages")
		return err
	}

	c.mu.Lock()
	old := c.sub
	c.sub = nil
	c.gen++
	gen := c.gen
	c.room = room
	c.msgs = make([]models.Message, 0, len(history))
	c.seen = make(map[string]struct{}, len(history))
	for _, m := range history {
		c.insertLocked(m)
	}
	c.mu.Unlock()

	// Outside the lock: Unsubscribe waits for a running callback, which needs it.
	if old != nil {
		if err := old.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe", "error", err)
		}
	}

	sub, err := c.feed.Subscribe(ctx, roomID, c.onInsert(gen))
	if err != nil {
		slog.Error("failed to subscribe to room", "error", err, "room_id", roomID)
		c.view.RoomLoaded(*room, c.Messages())
		c.notifyError("Live updates unavailable", "New messages will appear after reopening the room")
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		// Another SelectRoom won while we were subscribing.
		c.mu.Unlock()
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe", "error", err, "room_id", roomID)
		}
		return nil
	}
	c.sub = sub
	c.mu.Unlock()

	// Rows inserted between the fetch and the subscription would otherwise be lost.
	if catchUp, err := c.messages.FetchHistory(ctx, roomID); err == nil {
		c.mu.Lock()
		if c.gen == gen {
			for _, m := range catchUp {
				c.insertLocked(m)
			}
		}
		c.mu.Unlock()
	} else {
		slog.Warn("catch-up fetch failed", "error", err, "room_id", roomID)
	}

	c.view.RoomLoaded(*room, c.Messages())
	return nil
}

func (c *Controller) onInsert(gen uint64) func(models.Message) {
	return func(m models.Message) {
		c.mu.Lock()
		added := gen == c.gen && c.insertLocked(m)
		c.mu.Unlock()
		if added {
			c.view.MessageAdded(m)
		}
	}
}

// insertLocked adds m in created_at order unless it belongs to another room
// or is already present. Equal timestamps keep arrival order.
func (c *Controller) insertLocked(m models.Message) bool {
	if c.room == nil || m.RoomID != c.room.ID {
		return false
	}
	if _, ok := c.seen[m.ID]; ok {
		return false
	}
	c.seen[m.ID] = struct{}{}
	i := sort.Search(len(c.msgs), func(i int) bool {
		return c.msgs[i].CreatedAt.After(m.CreatedAt)
	})
	c.msgs = slices.Insert(c.msgs, i, m)
	return true
}

func (c *Controller) currentRoomID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return "", ErrNoRoomSelected
	}
	return c.room.ID, nil
}

func (c *Controller) SendText(ctx context.Context, content string) (*models.Message, error) {
	return c.sendToCurrent(ctx, models.NewMessage{Kind: models.KindText, Content: strings.TrimSpace(content)})
}

func (c *Controller) SendVideo(ctx context.Context, videoURL string) (*models.Message, error) {
	return c.sendToCurrent(ctx, models.NewMessage{
		Kind:     models.KindVideo,
		Content:  "Shared a video",
		MediaURL: strings.TrimSpace(videoURL),
	})
}

func (c *Controller) sendToCurrent(ctx context.Context, p models.NewMessage) (*models.Message, error) {
	roomID, err := c.currentRoomID()
	if err != nil {
		c.notifyError("Error", "Open a room first")
		return nil, err
	}
	return c.send(ctx, roomID, p)
}

// send appends and shows the stored row right away; the feed echo of the same
// row is then dropped as a duplicate.
func (c *Controller) send(ctx context.Context, roomID string, p models.NewMessage) (*models.Message, error) {
	p.RoomID = roomID
	p.UserID = c.User().ID

	m, err := c.messages.Append(ctx, p)
	if err != nil {
		if errors.Is(err, models.ErrInvalidMessage) {
			c.notifyError("Invalid message", err.Error())
		} else {
			slog.Error("failed to send message", "error", err, "room_id", roomID)
			c.notifyError("Error", "Failed to send message")
		}
		return nil, err
	}

	c.mu.Lock()
	added := c.insertLocked(*m)
	c.mu.Unlock()
	if added {
		c.view.MessageAdded(*m)
	}
	return m, nil
}

// SendGif charges the gif's price and, only once the payment has completed,
// posts it to the room that was open when the user asked.
func (c *Controller) SendGif(ctx context.Context, gifID string) (*models.Message, error) {
	gif, ok := models.FindGif(gifID)
	if !ok {
		c.notifyError("Error", "That GIF is not available")
		return nil, fmt.Errorf("%w: %s", ErrUnknownGif, gifID)
	}
	roomID, err := c.currentRoomID()
	if err != nil {
		c.notifyError("Error", "Open a room first")
		return nil, err
	}

	intent := payment.GifPurchase(gif)
	res, err := c.payments.Pay(ctx, intent)
	if err != nil {
		c.notifyPaymentError(err)
		return nil, err
	}
	c.recordPayment(ctx, intent, res)

	cost := gif.Cost
	m, err := c.send(ctx, roomID, models.NewMessage{
		Kind:      models.KindGif,
		Content:   "Sent a GIF",
		MediaURL:  gif.URL,
		PiCost:    &cost,
		PaymentID: res.PaymentID,
		TxID:      res.TxID,
	})
	if err != nil {
		return nil, err
	}
	c.view.Notify(Notification{
		Level:   LevelInfo,
		Title:   "GIF sent!",
		Message: fmt.Sprintf("Sent %s for %s", gif.Title, payment.FormatPi(gif.Cost)),
	})
	return m, nil
}

// UpgradeRole charges the admin upgrade and promotes the user.
func (c *Controller) UpgradeRole(ctx context.Context) (models.User, error) {
	user := c.User()
	if user.IsAdmin() {
		c.view.Notify(Notification{Level: LevelInfo, Title: "Already admin", Message: "Your account is already an admin"})
		return user, nil
	}

	intent := payment.AdminUpgrade()
	res, err := c.payments.Pay(ctx, intent)
	if err != nil {
		c.notifyPaymentError(err)
		return user, err
	}
	c.recordPayment(ctx, intent, res)

	if err := c.accounts.SetUserRole(ctx, user.ID, models.RoleAdmin); err != nil {
		slog.Error("payment completed but role update failed", "error", err, "user_id", user.ID, "payment_id", res.PaymentID)
		c.notifyError("Error", "Payment completed but the upgrade could not be saved")
		return user, err
	}

	c.mu.Lock()
	c.user.Role = models.RoleAdmin
	user = c.user
	c.mu.Unlock()

	c.view.RoleUpdated(user)
	c.view.Notify(Notification{Level: LevelInfo, Title: "Upgraded", Message: "You are now an admin"})
	return user, nil
}

func (c *Controller) recordPayment(ctx context.Context, intent payment.Intent, res *payment.Result) {
	err := c.accounts.RecordPayment(ctx, models.Payment{
		PaymentID: res.PaymentID,
		TxID:      res.TxID,
		UserID:    c.User().ID,
		Amount:    intent.Amount,
		Memo:      intent.Memo,
		Purpose:   intent.Purpose(),
	})
	if err != nil {
		slog.Error("failed to record payment", "error", err, "payment_id", res.PaymentID)
	}
}

// Close drops the room subscription. The controller can be reused afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	old := c.sub
	c.sub = nil
	c.gen++
	c.room = nil
	c.msgs = nil
	c.seen = make(map[string]struct{})
	c.mu.Unlock()

	if old != nil {
		if err := old.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe", "error", err)
		}
	}
}

func (c *Controller) notifyError(title, message string) {
	c.view.Notify(Notification{Level: LevelError, Title: title, Message: message})
}

func (c *Controller) notifyPaymentError(err error) {
	switch {
	case errors.Is(err, payment.ErrPaymentAlreadyInProgress):
		c.notifyError("Payment in progress", "Finish the current Pi payment first")
	case errors.Is(err, payment.ErrPaymentCancelled):
		c.notifyError("Payment cancelled", "The Pi transaction was cancelled")
	case errors.Is(err, payment.ErrPaymentTimeout):
		c.notifyError("Payment timed out", "The Pi wallet did not respond in time")
	default:
		slog.Error("pi payment failed", "error", err)
		c.notifyError("Error", "Failed to process the Pi payment")
	}
}

type nopView struct{}

func (nopView) RoomLoaded(models.Room, []models.Message) {}
func (nopView) MessageAdded(models.Message)             {}
func (nopView) RoleUpdated(models.User)                 {}
func (nopView) Notify(Notification)                     {}

// FeedSubscriber adapts a realtime.Feed to the controller.
type FeedSubscriber struct {
	Feed *realtime.Feed
}

func (s FeedSubscriber) Subscribe(ctx context.Context, roomID string, onInsert func(models.Message)) (Subscription, error) {
	sub, err := s.Feed.Subscribe(ctx, roomID, onInsert)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
