// Package uow executa um conjunto de operações de repositório dentro de uma
// única transação.
package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tracekit-dev/trace-relay/pkg/database"
)

// ErrNilDB é devolvido por New quando a conexão não foi informada.
var ErrNilDB = errors.New("uow: database connection cannot be nil")

// UnitOfWork abre uma transação por chamada de Do. Chamadas concorrentes são
// independentes entre si.
type UnitOfWork interface {
	// Do faz commit quando fn retorna nil e rollback em erro ou panic. O panic
	// é relançado depois do rollback.
	Do(ctx context.Context, fn func(ctx context.Context, tx database.DBTX) error) error
}

type unitOfWork struct {
	db      *sql.DB
	options *sql.TxOptions
}

type Option func(*unitOfWork)

// WithIsolationLevel configura o nível de isolamento da transação.
func WithIsolationLevel(level sql.IsolationLevel) Option {
	return func(u *unitOfWork) {
		if u.options == nil {
			u.options = &sql.TxOptions{}
		}
		u.options.Isolation = level
	}
}

// WithReadOnly configura a transação como somente leitura.
func WithReadOnly(readOnly bool) Option {
	return func(u *unitOfWork) {
		if u.options == nil {
			u.options = &sql.TxOptions{}
		}
		u.options.ReadOnly = readOnly
	}
}

func New(db *sql.DB, opts ...Option) (UnitOfWork, error) {
	if db == nil {
		return nil, ErrNilDB
	}

	u := &unitOfWork{db: db}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

func (u *unitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx database.DBTX) error) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before transaction start: %w", err)
	}

	tx, err := u.db.BeginTx(ctx, u.options)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := rollback(tx); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	// Commit do database/sql não recebe context; um cancelamento durante fn
	// precisa ser verificado aqui.
	if err := ctx.Err(); err != nil {
		_ = rollback(tx)
		return fmt.Errorf("context cancelled during transaction: %w", err)
	}

	committed = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func rollback(tx *sql.Tx) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
