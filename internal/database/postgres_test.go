package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decimalcoins/broom-chat/internal/models"
)

var messageCols = []string{"id", "room_id", "user_id", "content", "message_type",
	"video_url", "gif_url", "pi_cost", "payment_id", "txid", "created_at"}

func setupTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestStore_FetchHistory(t *testing.T) {
	t.Run("returns rows in query order", func(t *testing.T) {
		store, mock := setupTestStore(t)
		t0 := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

		mock.ExpectQuery(`(?s)SELECT .+ FROM messages WHERE room_id = \$1 ORDER BY created_at ASC`).
			WithArgs("room-1").
			WillReturnRows(sqlmock.NewRows(messageCols).
				AddRow("m1", "room-1", "u1", "hi", "text", "", "", 0.0, "", "", t0).
				AddRow("m2", "room-1", "u2", "Sent a GIF", "gif", "", "https://g", 0.001, "pay-1", "tx-1", t0.Add(time.Minute)))

		msgs, err := store.FetchHistory(context.Background(), "room-1")
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "m1", msgs[0].ID)
		assert.Equal(t, models.KindText, msgs[0].Kind)
		assert.Equal(t, models.KindGif, msgs[1].Kind)
		assert.Equal(t, "https://g", msgs[1].GifURL)
		assert.Equal(t, 0.001, msgs[1].PiCost)
		assert.Equal(t, "tx-1", msgs[1].TxID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty room yields empty slice", func(t *testing.T) {
		store, mock := setupTestStore(t)
		mock.ExpectQuery(`FROM messages`).WithArgs("room-1").WillReturnRows(sqlmock.NewRows(messageCols))

		msgs, err := store.FetchHistory(context.Background(), "room-1")
		require.NoError(t, err)
		assert.NotNil(t, msgs)
		assert.Empty(t, msgs)
	})

	t.Run("driver error is a transport error", func(t *testing.T) {
		store, mock := setupTestStore(t)
		mock.ExpectQuery(`FROM messages`).WillReturnError(errors.New("connection refused"))

		msgs, err := store.FetchHistory(context.Background(), "room-1")
		assert.Nil(t, msgs)
		assert.True(t, IsTransport(err))
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestStore_Append(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		payload   models.NewMessage
		mockSetup func(sqlmock.Sqlmock)
		check     func(t *testing.T, m *models.Message, err error)
	}{
		{
			name:    "text message is free",
			payload: models.NewMessage{RoomID: "room-1", UserID: "u1", Content: "hi", Kind: models.KindText},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO messages`).
					WithArgs("room-1", "u1", "hi", "text", "", "", 0.0, "", "").
					WillReturnRows(sqlmock.NewRows(messageCols).
						AddRow("m1", "room-1", "u1", "hi", "text", "", "", 0.0, "", "", t0))
			},
			check: func(t *testing.T, m *models.Message, err error) {
				require.NoError(t, err)
				assert.Equal(t, "m1", m.ID)
				assert.Zero(t, m.PiCost)
				assert.Empty(t, m.MediaURL())
			},
		},
		{
			name:    "gif defaults to the fixed price",
			payload: models.NewMessage{RoomID: "room-1", UserID: "u1", Content: "Sent a GIF", Kind: models.KindGif, MediaURL: "https://g"},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO messages`).
					WithArgs("room-1", "u1", "Sent a GIF", "gif", "", "https://g", models.DefaultGifPrice, "", "").
					WillReturnRows(sqlmock.NewRows(messageCols).
						AddRow("m2", "room-1", "u1", "Sent a GIF", "gif", "", "https://g", 0.001, "", "", t0))
			},
			check: func(t *testing.T, m *models.Message, err error) {
				require.NoError(t, err)
				assert.Equal(t, 0.001, m.PiCost)
			},
		},
		{
			name:      "invalid payload never reaches the database",
			payload:   models.NewMessage{RoomID: "room-1", UserID: "u1", Kind: models.KindText},
			mockSetup: func(sqlmock.Sqlmock) {},
			check: func(t *testing.T, m *models.Message, err error) {
				assert.Nil(t, m)
				assert.ErrorIs(t, err, models.ErrInvalidMessage)
				assert.False(t, IsTransport(err))
			},
		},
		{
			name:    "rejected insert",
			payload: models.NewMessage{RoomID: "room-1", UserID: "u1", Content: "hi", Kind: models.KindText},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO messages`).WillReturnError(errors.New("violates foreign key"))
			},
			check: func(t *testing.T, m *models.Message, err error) {
				assert.Nil(t, m)
				var te *TransportError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, "append message", te.Op)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := setupTestStore(t)
			tt.mockSetup(mock)
			m, err := store.Append(context.Background(), tt.payload)
			tt.check(t, m, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_Rooms(t *testing.T) {
	roomCols := []string{"id", "name", "description", "created_at"}
	now := time.Now().UTC()

	t.Run("create trims the name", func(t *testing.T) {
		store, mock := setupTestStore(t)
		mock.ExpectQuery(`INSERT INTO chat_rooms`).
			WithArgs("General", "").
			WillReturnRows(sqlmock.NewRows(roomCols).AddRow("r1", "General", "", now))

		room, err := store.CreateRoom(context.Background(), "  General ", "")
		require.NoError(t, err)
		assert.Equal(t, "General", room.Name)
	})

	t.Run("create requires a name", func(t *testing.T) {
		store, _ := setupTestStore(t)
		_, err := store.CreateRoom(context.Background(), "   ", "x")
		assert.Error(t, err)
	})

	t.Run("missing room", func(t *testing.T) {
		store, mock := setupTestStore(t)
		id := "7d3f6c1e-2b4a-4c8e-9f10-3a5b7c9d1e2f"
		mock.ExpectQuery(`FROM chat_rooms WHERE id`).WithArgs(id).WillReturnError(sql.ErrNoRows)

		_, err := store.GetRoom(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed id is not found without a query", func(t *testing.T) {
		store, mock := setupTestStore(t)

		_, err := store.GetRoom(context.Background(), "not-a-uuid")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.False(t, IsTransport(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list newest first", func(t *testing.T) {
		store, mock := setupTestStore(t)
		mock.ExpectQuery(`FROM chat_rooms ORDER BY created_at DESC`).
			WillReturnRows(sqlmock.NewRows(roomCols).
				AddRow("r2", "Random", "", now).
				AddRow("r1", "General", "", now.Add(-time.Hour)))

		rooms, err := store.ListRooms(context.Background())
		require.NoError(t, err)
		require.Len(t, rooms, 2)
		assert.Equal(t, "r2", rooms[0].ID)
	})
}

func TestStore_Users(t *testing.T) {
	userCols := []string{"id", "username", "role", "created_at"}

	t.Run("upsert", func(t *testing.T) {
		store, mock := setupTestStore(t)
		mock.ExpectQuery(`(?s)INSERT INTO users .+ ON CONFLICT`).
			WithArgs("u1", "tester").
			WillReturnRows(sqlmock.NewRows(userCols).AddRow("u1", "tester", "user", time.Now()))

		u, err := store.UpsertUser(context.Background(), "u1", "tester")
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, u.Role)
	})

	t.Run("get", func(t *testing.T) {
		store, mock := setupTestStore(t)
		mock.ExpectQuery(`FROM users WHERE id`).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows(userCols).AddRow("u1", "tester", "admin", time.Now()))
		mock.ExpectQuery(`FROM users WHERE id`).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		u, err := store.GetUser(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, u.IsAdmin())

		_, err = store.GetUser(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set role on unknown user", func(t *testing.T) {
		store, mock := setupTestStore(t)
		mock.ExpectExec(`UPDATE users SET role`).
			WithArgs("admin", "ghost").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.SetUserRole(context.Background(), "ghost", models.RoleAdmin)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set role", func(t *testing.T) {
		store, mock := setupTestStore(t)
		mock.ExpectExec(`UPDATE users SET role`).
			WithArgs("admin", "u1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.SetUserRole(context.Background(), "u1", models.RoleAdmin))
	})
}

func TestStore_Payments(t *testing.T) {
	store, mock := setupTestStore(t)
	mock.ExpectExec(`INSERT INTO payments`).
		WithArgs("pay-1", "tx-1", "u1", 0.002, "GIF: Love", models.PurposeGifPurchase).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`FROM payments WHERE user_id = \$1 ORDER BY created_at DESC`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"payment_id", "txid", "user_id", "amount", "memo", "purpose", "created_at"}).
			AddRow("pay-1", "tx-1", "u1", 0.002, "GIF: Love", models.PurposeGifPurchase, time.Now()))

	err := store.RecordPayment(context.Background(), models.Payment{
		PaymentID: "pay-1", TxID: "tx-1", UserID: "u1", Amount: 0.002, Memo: "GIF: Love", Purpose: models.PurposeGifPurchase,
	})
	require.NoError(t, err)

	payments, err := store.ListPayments(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, 0.002, payments[0].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
