package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/decimalcoins/broom-chat/internal/models"
)

func InitDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Store is the remote data service: rooms, messages, users and the payment ledger.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return transport("ping", s.db.PingContext(ctx))
}

// --- Rooms ---

func (s *Store) CreateRoom(ctx context.Context, name, description string) (*models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("room name is required")
	}
	var r models.Room
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO chat_rooms (name, description) VALUES ($1, $2)
		 RETURNING id, name, description, created_at`,
		name, strings.TrimSpace(description),
	).Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt)
	if err != nil {
		return nil, transport("create room", err)
	}
	return &r, nil
}

func (s *Store) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	// chat_rooms.id is a UUID column; anything else can never match.
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	var r models.Room
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM chat_rooms WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, transport("get room", err)
	}
	return &r, nil
}

// ListRooms returns every room, newest first.
func (s *Store) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM chat_rooms ORDER BY created_at DESC`)
	if err != nil {
		return nil, transport("list rooms", err)
	}
	defer rows.Close()

	rooms := []models.Room{}
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt); err != nil {
			return nil, transport("list rooms", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, transport("list rooms", rows.Err())
}

// --- Messages ---

const messageColumns = `id, room_id, user_id, content, message_type,
	COALESCE(video_url, ''), COALESCE(gif_url, ''), pi_cost,
	COALESCE(payment_id, ''), COALESCE(txid, ''), created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Content, &m.Kind,
		&m.VideoURL, &m.GifURL, &m.PiCost, &m.PaymentID, &m.TxID, &m.CreatedAt)
	return m, err
}

// FetchHistory returns the room's messages in ascending creation order.
func (s *Store) FetchHistory(ctx context.Context, roomID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE room_id = $1 ORDER BY created_at ASC`,
		roomID,
	)
	if err != nil {
		return nil, transport("fetch history", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, transport("fetch history", err)
		}
		messages = append(messages, m)
	}
	return messages, transport("fetch history", rows.Err())
}

// Append inserts a message and returns the stored row.
func (s *Store) Append(ctx context.Context, p models.NewMessage) (*models.Message, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	in := p.Message()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (room_id, user_id, content, message_type, video_url, gif_url, pi_cost, payment_id, txid)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''))
		RETURNING `+messageColumns,
		in.RoomID, in.UserID, in.Content, string(in.Kind), in.VideoURL, in.GifURL, in.PiCost, in.PaymentID, in.TxID,
	)
	m, err := scanMessage(row)
	if err != nil {
		return nil, transport("append message", err)
	}
	return &m, nil
}

// --- Users ---

// UpsertUser creates the user on first sight and refreshes the username afterwards.
// The stored role is never downgraded here.
func (s *Store) UpsertUser(ctx context.Context, id, username string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (id, username) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
		 RETURNING id, username, role, created_at`,
		id, username,
	).Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, transport("upsert user", err)
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, role, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, transport("get user", err)
	}
	return &u, nil
}

func (s *Store) SetUserRole(ctx context.Context, id string, role models.Role) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = $1 WHERE id = $2`, string(role), id)
	if err != nil {
		return transport("set user role", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return transport("set user role", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Payments ---

func (s *Store) RecordPayment(ctx context.Context, p models.Payment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (payment_id, txid, user_id, amount, memo, purpose) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.PaymentID, p.TxID, p.UserID, p.Amount, p.Memo, p.Purpose,
	)
	return transport("record payment", err)
}

// ListPayments returns the user's completed payments, newest first.
func (s *Store) ListPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payment_id, txid, user_id, amount, memo, purpose, created_at
		 FROM payments WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, transport("list payments", err)
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.PaymentID, &p.TxID, &p.UserID, &p.Amount, &p.Memo, &p.Purpose, &p.CreatedAt); err != nil {
			return nil, transport("list payments", err)
		}
		payments = append(payments, p)
	}
	return payments, transport("list payments", rows.Err())
}
