package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

const mysqlDuplicateEntry = 1062

type processedEvent struct {
	EventID     string    `db:"event_id"`
	OrderID     string    `db:"order_id"`
	ProcessedAt time.Time `db:"processed_at"`
}

// MySQLWebhookEventRepository remembers which provider events were applied.
type MySQLWebhookEventRepository struct {
	db *sqlx.DB
}

func NewMySQLWebhookEventRepository(db *sqlx.DB) *MySQLWebhookEventRepository {
	return &MySQLWebhookEventRepository{db: db}
}

var insertProcessedEventQuery = `INSERT INTO processed_webhook_events (event_id, order_id, processed_at)
	VALUES (:event_id, :order_id, :processed_at)`

// Record stores eventID inside tx. It returns false when the event was
// already recorded.
func (r *MySQLWebhookEventRepository) Record(ctx context.Context, tx *sqlx.Tx, eventID string, orderID string, at time.Time) (bool, error) {
	_, err := tx.NamedExecContext(ctx, insertProcessedEventQuery, processedEvent{
		EventID:     eventID,
		OrderID:     orderID,
		ProcessedAt: at,
	})
	if isDuplicateEntry(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("recording webhook event: %w", err)
	}
	return true, nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
