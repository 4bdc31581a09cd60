package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/decimalcoins/broom-chat/internal/auth"
	"github.com/decimalcoins/broom-chat/internal/database"
	"github.com/decimalcoins/broom-chat/internal/models"
	"github.com/decimalcoins/broom-chat/internal/payment"
)

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpsertUser(ctx context.Context, id, username string) (*models.User, error)
}

type PaymentStore interface {
	ListPayments(ctx context.Context, userID string) ([]models.Payment, error)
}

func ListGifs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.GifCatalog())
}

// Me returns the caller's profile, creating it on first sight.
func Me(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, username := auth.UserFromContext(r.Context())
		user, err := users.GetUser(r.Context(), userID)
		if errors.Is(err, database.ErrNotFound) {
			user, err = users.UpsertUser(r.Context(), userID, username)
		}
		if err != nil {
			slog.Error("failed to load user", "error", err, "user_id", userID)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

type walletResponse struct {
	Payments   []models.Payment `json:"payments"`
	Count      int              `json:"count"`
	TotalPi    float64          `json:"total_pi"`
	TotalLabel string           `json:"total_label"`
	GCVUSD     float64          `json:"gcv_usd"`
	GCVLabel   string           `json:"gcv_label"`
}

// Wallet lists the caller's Pi payments with their total at the GCV rate.
func Wallet(store PaymentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserFromContext(r.Context())
		payments, err := store.ListPayments(r.Context(), userID)
		if err != nil {
			slog.Error("failed to list payments", "error", err, "user_id", userID)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if payments == nil {
			payments = []models.Payment{}
		}

		var total float64
		for _, p := range payments {
			total += p.Amount
		}
		usd := payment.ToUSD(total)
		writeJSON(w, http.StatusOK, walletResponse{
			Payments:   payments,
			Count:      len(payments),
			TotalPi:    total,
			TotalLabel: payment.FormatPi(total),
			GCVUSD:     usd,
			GCVLabel:   payment.FormatUSD(usd),
		})
	}
}
