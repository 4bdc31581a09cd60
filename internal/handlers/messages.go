package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/decimalcoins/broom-chat/internal/auth"
	"github.com/decimalcoins/broom-chat/internal/database"
	"github.com/decimalcoins/broom-chat/internal/models"
)

type MessageStore interface {
	FetchHistory(ctx context.Context, roomID string) ([]models.Message, error)
	Append(ctx context.Context, p models.NewMessage) (*models.Message, error)
}

func GetMessages(rooms RoomStore, store MessageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["id"]
		if !roomExists(w, r, rooms, roomID) {
			return
		}

		messages, err := store.FetchHistory(r.Context(), roomID)
		if err != nil {
			slog.Error("failed to get messages", "error", err, "room_id", roomID)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if messages == nil {
			messages = []models.Message{}
		}
		writeJSON(w, http.StatusOK, messages)
	}
}

// PostMessage appends a text or video message. GIFs cost Pi and can only be
// sent over the websocket, where the payment handshake runs.
func PostMessage(rooms RoomStore, store MessageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["id"]
		userID, _ := auth.UserFromContext(r.Context())

		var req struct {
			Content     string             `json:"content"`
			MessageType models.MessageKind `json:"message_type"`
			VideoURL    string             `json:"video_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.MessageType == "" {
			req.MessageType = models.KindText
		}
		if req.MessageType == models.KindGif {
			writeError(w, http.StatusPaymentRequired, "gif messages require a Pi payment")
			return
		}
		if !roomExists(w, r, rooms, roomID) {
			return
		}

		msg, err := store.Append(r.Context(), models.NewMessage{
			RoomID:   roomID,
			UserID:   userID,
			Content:  req.Content,
			Kind:     req.MessageType,
			MediaURL: req.VideoURL,
		})
		if errors.Is(err, models.ErrInvalidMessage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			slog.Error("failed to create message", "error", err, "room_id", roomID)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func roomExists(w http.ResponseWriter, r *http.Request, rooms RoomStore, roomID string) bool {
	_, err := rooms.GetRoom(r.Context(), roomID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "room not found")
		return false
	}
	if err != nil {
		slog.Error("failed to get room", "error", err, "room_id", roomID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	return true
}
