package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Ticket struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type TicketRepository interface {
	Create(ctx context.Context, userID int64, subject, message string) (*Ticket, error)
	ListByUser(ctx context.Context, userID int64, page, perPage int) ([]Ticket, int, error)
	ListAll(ctx context.Context, page, perPage int) ([]Ticket, int, error)
	Get(ctx context.Context, id int64) (*Ticket, error)
}

type PgTicketRepository struct {
	db *pgxpool.Pool
}

func NewPgTicketRepository(db *pgxpool.Pool) *PgTicketRepository {
	return &PgTicketRepository{db: db}
}

func (r *PgTicketRepository) Create(ctx context.Context, userID int64, subject, message string) (*Ticket, error) {
	const q = `INSERT INTO tickets (subject, message, user_id)
VALUES ($1,$2,$3)
RETURNING id, created_at`
	t := Ticket{
		Subject: strings.TrimSpace(subject),
		Message: strings.TrimSpace(message),
		UserID:  userID,
	}
	if err := r.db.QueryRow(ctx, q, t.Subject, t.Message, userID).Scan(&t.ID, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PgTicketRepository) ListByUser(ctx context.Context, userID int64, page, perPage int) ([]Ticket, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	const countQ = `SELECT COUNT(*) FROM tickets WHERE user_id=$1`
	var total int
	if err := r.db.QueryRow(ctx, countQ, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
SELECT id, subject, message, user_id, created_at
FROM tickets
WHERE user_id=$1
ORDER BY id DESC
LIMIT $2 OFFSET $3
`, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Ticket, 0, perPage)
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.Subject, &t.Message, &t.UserID, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *PgTicketRepository) ListAll(ctx context.Context, page, perPage int) ([]Ticket, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	const countQ = `SELECT COUNT(*) FROM tickets`
	var total int
	if err := r.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
SELECT id, subject, message, user_id, created_at
FROM tickets
ORDER BY id DESC
LIMIT $1 OFFSET $2
`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Ticket, 0, perPage)
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.Subject, &t.Message, &t.UserID, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *PgTicketRepository) Get(ctx context.Context, id int64) (*Ticket, error) {
	const q = `SELECT id, subject, message, user_id, created_at FROM tickets WHERE id=$1`
	var t Ticket
	if err := r.db.QueryRow(ctx, q, id).Scan(&t.ID, &t.Subject, &t.Message, &t.UserID, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
