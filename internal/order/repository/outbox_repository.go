package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"comanda/internal/domain"
)

type MySQLOutboxRepository struct {
	db *sqlx.DB
}

func NewMySQLOutboxRepository(db *sqlx.DB) *MySQLOutboxRepository {
	return &MySQLOutboxRepository{db: db}
}

var createOutboxQuery = `INSERT INTO order_outbox (order_id, content, created_at) VALUES (:order_id, :content, :created_at)`

func (r *MySQLOutboxRepository) Insert(ctx context.Context, tx *sqlx.Tx, msg domain.OutboxMessage) error {
	if _, err := tx.NamedExecContext(ctx, createOutboxQuery, msg); err != nil {
		return fmt.Errorf("inserting outbox message: %w", err)
	}
	return nil
}

func (r *MySQLOutboxRepository) FindPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	var res []domain.OutboxMessage
	err := r.db.SelectContext(ctx, &res, `SELECT id, order_id, content, created_at FROM order_outbox ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending outbox: %w", err)
	}
	return res, nil
}

// DeleteByIDs drops relayed messages.
func (r *MySQLOutboxRepository) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`DELETE FROM order_outbox WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("building outbox delete: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting relayed outbox: %w", err)
	}
	return nil
}
