package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decimalcoins/broom-chat/internal/auth"
	"github.com/decimalcoins/broom-chat/internal/database"
	"github.com/decimalcoins/broom-chat/internal/models"
)

var epoch = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	rooms    map[string]models.Room
	messages []models.Message
	payments []models.Payment
	users    map[string]models.User
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: map[string]models.Room{
		"room-1": {ID: "room-1", Name: "General", CreatedAt: epoch},
	}}
}

func (s *fakeStore) ListRooms(context.Context) ([]models.Room, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Room
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) GetRoom(_ context.Context, id string) (*models.Room, error) {
	if s.err != nil {
		return nil, s.err
	}
	r, ok := s.rooms[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &r, nil
}

func (s *fakeStore) CreateRoom(_ context.Context, name, description string) (*models.Room, error) {
	r := models.Room{ID: "room-2", Name: name, Description: description, CreatedAt: epoch}
	s.rooms[r.ID] = r
	return &r, nil
}

func (s *fakeStore) FetchHistory(_ context.Context, roomID string) ([]models.Message, error) {
	var out []models.Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) Append(_ context.Context, p models.NewMessage) (*models.Message, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m := p.Message()
	m.ID = "msg-1"
	m.CreatedAt = epoch
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *fakeStore) GetUser(_ context.Context, id string) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &u, nil
}

func (s *fakeStore) UpsertUser(_ context.Context, id, username string) (*models.User, error) {
	u := models.User{ID: id, Username: username, Role: models.RoleUser, CreatedAt: epoch}
	if s.users == nil {
		s.users = map[string]models.User{}
	}
	s.users[id] = u
	return &u, nil
}

func (s *fakeStore) ListPayments(_ context.Context, userID string) ([]models.Payment, error) {
	return s.payments, nil
}

func router(s *fakeStore) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/rooms", ListRooms(s)).Methods("GET")
	r.HandleFunc("/api/rooms", CreateRoom(s)).Methods("POST")
	r.HandleFunc("/api/rooms/{id}", GetRoom(s)).Methods("GET")
	r.HandleFunc("/api/rooms/{id}/messages", GetMessages(s, s)).Methods("GET")
	r.HandleFunc("/api/rooms/{id}/messages", PostMessage(s, s)).Methods("POST")
	r.HandleFunc("/api/gifs", ListGifs).Methods("GET")
	r.HandleFunc("/api/me", Me(s)).Methods("GET")
	r.HandleFunc("/api/wallet", Wallet(s)).Methods("GET")
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(auth.WithUser(req.Context(), "u1", "tester"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRooms(t *testing.T) {
	s := newFakeStore()
	h := router(s)

	rec := do(t, h, "GET", "/api/rooms/room-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var room models.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))
	assert.Equal(t, "General", room.Name)

	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/api/rooms/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/rooms", `{"name":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/rooms", `{`).Code)

	rec = do(t, h, "POST", "/api/rooms", `{"name":"Random","description":"anything"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, s.rooms, 2)

	s.err = errors.New("connection refused")
	assert.Equal(t, http.StatusInternalServerError, do(t, h, "GET", "/api/rooms", "").Code)
}

func TestMessages(t *testing.T) {
	s := newFakeStore()
	h := router(s)

	rec := do(t, h, "GET", "/api/rooms/room-1/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"text", "/api/rooms/room-1/messages", `{"content":"hello"}`, http.StatusCreated},
		{"video", "/api/rooms/room-1/messages", `{"content":"Shared a video","message_type":"video","video_url":"https://v.example/a.mp4"}`, http.StatusCreated},
		{"gif needs payment", "/api/rooms/room-1/messages", `{"content":"Sent a GIF","message_type":"gif"}`, http.StatusPaymentRequired},
		{"empty text", "/api/rooms/room-1/messages", `{"content":""}`, http.StatusBadRequest},
		{"video without url", "/api/rooms/room-1/messages", `{"content":"x","message_type":"video"}`, http.StatusBadRequest},
		{"unknown room", "/api/rooms/nope/messages", `{"content":"hello"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, do(t, h, "POST", tt.path, tt.body).Code)
		})
	}

	require.Len(t, s.messages, 2)
	assert.Equal(t, "u1", s.messages[0].UserID)
	assert.Equal(t, "https://v.example/a.mp4", s.messages[1].MediaURL())
}

func TestGifsMeWallet(t *testing.T) {
	s := newFakeStore()
	s.payments = []models.Payment{
		{PaymentID: "pi-1", UserID: "u1", Amount: 0.001, Purpose: models.PurposeGifPurchase, CreatedAt: epoch},
		{PaymentID: "pi-2", UserID: "u1", Amount: 0.002, Purpose: models.PurposeGifPurchase, CreatedAt: epoch},
	}
	h := router(s)

	var gifs []models.Gif
	require.NoError(t, json.Unmarshal(do(t, h, "GET", "/api/gifs", "").Body.Bytes(), &gifs))
	assert.Len(t, gifs, 8)

	var me models.User
	require.NoError(t, json.Unmarshal(do(t, h, "GET", "/api/me", "").Body.Bytes(), &me))
	assert.Equal(t, "tester", me.Username)
	assert.Contains(t, s.users, "u1", "first /api/me creates the user")

	// An existing user keeps the stored role.
	s.users["u1"] = models.User{ID: "u1", Username: "tester", Role: models.RoleAdmin, CreatedAt: epoch}
	require.NoError(t, json.Unmarshal(do(t, h, "GET", "/api/me", "").Body.Bytes(), &me))
	assert.Equal(t, models.RoleAdmin, me.Role)

	var wallet walletResponse
	require.NoError(t, json.Unmarshal(do(t, h, "GET", "/api/wallet", "").Body.Bytes(), &wallet))
	assert.Equal(t, 2, wallet.Count)
	assert.InDelta(t, 0.003, wallet.TotalPi, 1e-9)
	assert.Equal(t, "0.003000 π", wallet.TotalLabel)
	assert.Equal(t, "$942.48", wallet.GCVLabel)
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("redis down") }

	rec := httptest.NewRecorder()
	Health(map[string]Pinger{"postgres": ok, "redis": ok}).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	Health(map[string]Pinger{"postgres": ok, "redis": down}).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "redis down", body.Checks["redis"])
	assert.Equal(t, "ok", body.Checks["postgres"])
}
