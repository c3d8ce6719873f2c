package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"comanda/internal/domain"
)

// MySQLRetirementTaskRepository keeps the durable delayed-retirement queue,
// one row per order.
type MySQLRetirementTaskRepository struct {
	db *sqlx.DB
}

func NewMySQLRetirementTaskRepository(db *sqlx.DB) *MySQLRetirementTaskRepository {
	return &MySQLRetirementTaskRepository{db: db}
}

var scheduleTaskQuery = `INSERT INTO order_retirement_tasks (order_id, due_at, created_at)
	VALUES (:order_id, :due_at, :created_at)
	ON DUPLICATE KEY UPDATE due_at = VALUES(due_at)`

func (r *MySQLRetirementTaskRepository) Schedule(ctx context.Context, tx *sqlx.Tx, task domain.RetirementTask) error {
	if _, err := tx.NamedExecContext(ctx, scheduleTaskQuery, task); err != nil {
		return fmt.Errorf("scheduling retirement task: %w", err)
	}
	return nil
}

func (r *MySQLRetirementTaskRepository) Cancel(ctx context.Context, tx *sqlx.Tx, orderID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_retirement_tasks WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("cancelling retirement task: %w", err)
	}
	return nil
}

func (r *MySQLRetirementTaskRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]domain.RetirementTask, error) {
	var tasks []domain.RetirementTask
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT order_id, due_at, created_at
		FROM order_retirement_tasks
		WHERE due_at <= ?
		ORDER BY due_at
		LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("querying due retirement tasks: %w", err)
	}
	return tasks, nil
}
