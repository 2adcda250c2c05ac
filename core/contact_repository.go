package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Contact struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ContactRepository is owner-scoped: every operation checks the contact
// belongs to the requesting user.
type ContactRepository interface {
	Create(ctx context.Context, userID int64, firstName, lastName, email, phone string) (*Contact, error)
	List(ctx context.Context, userID int64, page, perPage int) ([]Contact, int, error)
	Get(ctx context.Context, id, userID int64) (*Contact, error)
	Update(ctx context.Context, id, userID int64, firstName, lastName, email, phone string) (*Contact, error)
	Delete(ctx context.Context, id, userID int64) error
}

type PgContactRepository struct {
	db *pgxpool.Pool
}

func NewPgContactRepository(db *pgxpool.Pool) *PgContactRepository {
	return &PgContactRepository{db: db}
}

func (r *PgContactRepository) Create(ctx context.Context, userID int64, firstName, lastName, email, phone string) (*Contact, error) {
	const q = `INSERT INTO contacts (first_name, last_name, email, phone, user_id)
VALUES ($1,$2,$3,$4,$5)
RETURNING id, created_at`
	c := Contact{
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Email:     strings.TrimSpace(email),
		Phone:     strings.TrimSpace(phone),
		UserID:    userID,
	}
	if err := r.db.QueryRow(ctx, q, c.FirstName, c.LastName, c.Email, c.Phone, userID).Scan(&c.ID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PgContactRepository) List(ctx context.Context, userID int64, page, perPage int) ([]Contact, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	const countQ = `SELECT COUNT(*) FROM contacts WHERE user_id=$1`
	var total int
	if err := r.db.QueryRow(ctx, countQ, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
SELECT id, first_name, last_name, email, phone, user_id, created_at
FROM contacts
WHERE user_id=$1
ORDER BY id DESC
LIMIT $2 OFFSET $3
`, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Contact, 0, perPage)
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.UserID, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *PgContactRepository) Get(ctx context.Context, id, userID int64) (*Contact, error) {
	const q = `SELECT id, first_name, last_name, email, phone, user_id, created_at
FROM contacts WHERE id=$1 AND user_id=$2`
	var c Contact
	if err := r.db.QueryRow(ctx, q, id, userID).Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.UserID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PgContactRepository) Update(ctx context.Context, id, userID int64, firstName, lastName, email, phone string) (*Contact, error) {
	const q = `UPDATE contacts SET first_name=$1, last_name=$2, email=$3, phone=$4
WHERE id=$5 AND user_id=$6
RETURNING id, first_name, last_name, email, phone, user_id, created_at`
	var c Contact
	err := r.db.QueryRow(ctx, q,
		strings.TrimSpace(firstName), strings.TrimSpace(lastName),
		strings.TrimSpace(email), strings.TrimSpace(phone), id, userID,
	).Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.UserID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PgContactRepository) Delete(ctx context.Context, id, userID int64) error {
	const q = `DELETE FROM contacts WHERE id=$1 AND user_id=$2`
	tag, err := r.db.Exec(ctx, q, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
