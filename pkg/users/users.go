// Package users reads and updates the users table.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tracekit-dev/trace-relay/pkg/database"
)

var ErrNotFound = errors.New("users: user not found")

type User struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	TotalSpent float64   `json:"total_spent"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Repository works on a *sql.DB or on the *sql.Tx of a unit of work.
type Repository struct {
	db database.DBTX
}

func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

const selectUser = `SELECT id, name, email, total_spent, created_at, updated_at FROM users`

// List returns at most limit users ordered by id.
func (r *Repository) List(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		return []User{}, nil
	}

	rows, err := r.db.QueryContext(ctx, selectUser+` ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	result := make([]User, 0, limit)
	for rows.Next() {
		var u User
		if err := scan(rows, &u); err != nil {
			return nil, fmt.Errorf("users: list: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return result, nil
}

func (r *Repository) FindByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := scan(r.db.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id), &u)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return User{}, fmt.Errorf("users: find %d: %w", id, err)
	}
	return u, nil
}

// IncrementTotalSpent adds amount to the user's total_spent.
func (r *Repository) IncrementTotalSpent(ctx context.Context, id int64, amount float64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET total_spent = total_spent + $1, updated_at = $2 WHERE id = $3`,
		amount, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("users: increment total_spent of %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("users: increment total_spent of %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner, u *User) error {
	return s.Scan(&u.ID, &u.Name, &u.Email, &u.TotalSpent, &u.CreatedAt, &u.UpdatedAt)
}
