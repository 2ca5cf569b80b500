package payment

import (
	"context"
	"fmt"

	"github.com/tracekit-dev/trace-relay/pkg/database"
)

type repository struct {
	db database.DBTX
}

func (r repository) insert(ctx context.Context, p Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, user_id, amount, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.UserID, p.Amount, p.Status, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("payment: insert %s: %w", p.ID, err)
	}
	return nil
}
