package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"comanda/internal/domain"
)

type MySQLOrderItemRepository struct {
	db *sqlx.DB
}

func NewMySQLOrderItemRepository(db *sqlx.DB) *MySQLOrderItemRepository {
	return &MySQLOrderItemRepository{db: db}
}

// InsertBatch stores the cart snapshot, keeping cart order through position.
func (r *MySQLOrderItemRepository) InsertBatch(ctx context.Context, tx *sqlx.Tx, orderID string, items []domain.CartItem) error {
	if len(items) == 0 {
		return nil
	}

	placeholders := make([]string, len(items))
	args := make([]interface{}, 0, len(items)*5)
	for i, item := range items {
		placeholders[i] = "(?, ?, ?, ?, ?)"
		args = append(args, orderID, i, item.MenuItemID, item.Name, item.Quantity)
	}

	query := `INSERT INTO order_items (order_id, position, menu_item_id, name, quantity) VALUES ` +
		strings.Join(placeholders, ", ")

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting order items: %w", err)
	}

	return nil
}

func (r *MySQLOrderItemRepository) FindByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]domain.CartItem, error) {
	result := make(map[string][]domain.CartItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`
		SELECT order_id, menu_item_id, name, quantity
		FROM order_items
		WHERE order_id IN (?)
		ORDER BY order_id, position`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("building order items query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    domain.CartItem
		)
		if err := rows.Scan(&orderID, &item.MenuItemID, &item.Name, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scanning order item row: %w", err)
		}
		result[orderID] = append(result[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order item rows: %w", err)
	}

	return result, nil
}
