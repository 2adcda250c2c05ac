package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Deal struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	ContactID int64     `json:"contact_id"`
	CreatedAt time.Time `json:"created_at"`
}

type DealRepository interface {
	Create(ctx context.Context, title string, amount float64, status string, contactID int64) (*Deal, error)
	List(ctx context.Context, page, perPage int) ([]Deal, int, error)
	Get(ctx context.Context, id int64) (*Deal, error)
	Update(ctx context.Context, id int64, title string, amount float64, status string) (*Deal, error)
	Delete(ctx context.Context, id int64) error
}

type PgDealRepository struct {
	db *pgxpool.Pool
}

func NewPgDealRepository(db *pgxpool.Pool) *PgDealRepository {
	return &PgDealRepository{db: db}
}

func (r *PgDealRepository) Create(ctx context.Context, title string, amount float64, status string, contactID int64) (*Deal, error) {
	const q = `INSERT INTO deals (title, amount, status, contact_id)
VALUES ($1,$2,$3,$4)
RETURNING id, created_at`
	d := Deal{
		Title:     strings.TrimSpace(title),
		Amount:    amount,
		Status:    strings.TrimSpace(status),
		ContactID: contactID,
	}
	if err := r.db.QueryRow(ctx, q, d.Title, d.Amount, d.Status, d.ContactID).Scan(&d.ID, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PgDealRepository) List(ctx context.Context, page, perPage int) ([]Deal, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, errors.New("invalid pagination")
	}
	const countQ = `SELECT COUNT(*) FROM deals`
	var total int
	if err := r.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
SELECT id, title, amount, status, contact_id, created_at
FROM deals
ORDER BY id DESC
LIMIT $1 OFFSET $2
`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]Deal, 0, perPage)
	for rows.Next() {
		var d Deal
		if err := rows.Scan(&d.ID, &d.Title, &d.Amount, &d.Status, &d.ContactID, &d.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *PgDealRepository) Get(ctx context.Context, id int64) (*Deal, error) {
	const q = `SELECT id, title, amount, status, contact_id, created_at FROM deals WHERE id=$1`
	var d Deal
	if err := r.db.QueryRow(ctx, q, id).Scan(&d.ID, &d.Title, &d.Amount, &d.Status, &d.ContactID, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PgDealRepository) Update(ctx context.Context, id int64, title string, amount float64, status string) (*Deal, error) {
	const q = `UPDATE deals SET title=$1, amount=$2, status=$3 WHERE id=$4
RETURNING id, title, amount, status, contact_id, created_at`
	var d Deal
	err := r.db.QueryRow(ctx, q, strings.TrimSpace(title), amount, strings.TrimSpace(status), id).
		Scan(&d.ID, &d.Title, &d.Amount, &d.Status, &d.ContactID, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PgDealRepository) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM deals WHERE id=$1`
	tag, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
