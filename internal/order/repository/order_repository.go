package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"comanda/internal/domain"
	"comanda/internal/errors"
)

const orderColumns = `
	id, user_id, restaurant_id,
	delivery_email, delivery_name, delivery_address_line1, delivery_city,
	total_amount, status, archived, payment_session_id, checkout_url,
	created_at, updated_at`

type MySQLOrderRepository struct {
	db *sqlx.DB
}

func NewMySQLOrderRepository(db *sqlx.DB) *MySQLOrderRepository {
	return &MySQLOrderRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order  domain.Order
		total  sql.NullInt64
		status string
	)
	err := row.Scan(
		&order.ID, &order.UserID, &order.RestaurantID,
		&order.DeliveryDetails.Email, &order.DeliveryDetails.Name,
		&order.DeliveryDetails.AddressLine1, &order.DeliveryDetails.City,
		&total, &status, &order.Archived, &order.PaymentSessionID, &order.CheckoutURL,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if total.Valid {
		amount := total.Int64
		order.TotalAmount = &amount
	}
	order.Status = domain.OrderStatus(status)
	return &order, nil
}

func (r *MySQLOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders WHERE id = ?`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("order with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying order by id: %w", err)
	}

	return order, nil
}

// FindByIDForUpdate locks the order row until tx ends.
func (r *MySQLOrderRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*domain.Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders WHERE id = ? FOR UPDATE`

	order, err := scanOrder(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("order with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("locking order by id: %w", err)
	}

	return order, nil
}

func (r *MySQLOrderRepository) FindByUser(ctx context.Context, userID string, archived bool) ([]domain.Order, error) {
	query := `SELECT` + orderColumns + `
		FROM orders
		WHERE user_id = ? AND archived = ?
		ORDER BY created_at DESC`

	return r.queryOrders(ctx, query, userID, archived)
}

func (r *MySQLOrderRepository) FindByRestaurants(ctx context.Context, restaurantIDs []string) ([]domain.Order, error) {
	if len(restaurantIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT`+orderColumns+`
		FROM orders
		WHERE restaurant_id IN (?) AND archived = 0
		ORDER BY created_at DESC`, restaurantIDs)
	if err != nil {
		return nil, fmt.Errorf("building restaurant orders query: %w", err)
	}

	return r.queryOrders(ctx, query, args...)
}

// FindDeliveredBefore returns active delivered orders untouched since cutoff.
func (r *MySQLOrderRepository) FindDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	query := `SELECT` + orderColumns + `
		FROM orders
		WHERE status = ? AND archived = 0 AND updated_at <= ?
		ORDER BY updated_at
		LIMIT ?`

	return r.queryOrders(ctx, query, domain.OrderStatusDelivered, cutoff, limit)
}

func (r *MySQLOrderRepository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order rows: %w", err)
	}

	return orders, nil
}

func (r *MySQLOrderRepository) Insert(ctx context.Context, tx *sqlx.Tx, order domain.Order) error {
	query := `INSERT INTO orders (
			id, user_id, restaurant_id,
			delivery_email, delivery_name, delivery_address_line1, delivery_city,
			status, archived, payment_session_id, checkout_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, query,
		order.ID, order.UserID, order.RestaurantID,
		order.DeliveryDetails.Email, order.DeliveryDetails.Name,
		order.DeliveryDetails.AddressLine1, order.DeliveryDetails.City,
		order.Status, order.PaymentSessionID, order.CheckoutURL,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	return nil
}

// UpdateStatus applies change only while the stored status equals change.From
// and the order is active. It reports whether a row was updated.
func (r *MySQLOrderRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, change domain.StatusChange) (bool, error) {
	query := `UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ? AND archived = 0`

	return execAffected(ctx, tx, "updating order status", query,
		change.To, change.At, change.OrderID, change.From,
	)
}

// MarkPaid fixes the total and moves an active placed order to paid.
func (r *MySQLOrderRepository) MarkPaid(ctx context.Context, tx *sqlx.Tx, id string, amount int64, at time.Time) (bool, error) {
	query := `UPDATE orders
		SET status = ?, total_amount = ?, updated_at = ?
		WHERE id = ? AND status = ? AND total_amount IS NULL AND archived = 0`

	return execAffected(ctx, tx, "marking order paid", query,
		domain.OrderStatusPaid, amount, at, id, domain.OrderStatusPlaced,
	)
}

// Archive retires a delivered order. updated_at is left alone so it keeps
// recording the last status change.
func (r *MySQLOrderRepository) Archive(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	query := `UPDATE orders SET archived = 1 WHERE id = ? AND status = ? AND archived = 0`

	return execAffected(ctx, tx, "archiving order", query, id, domain.OrderStatusDelivered)
}

func (r *MySQLOrderRepository) Delete(ctx context.Context, tx *sqlx.Tx, id string) error {
	affected, err := execAffected(ctx, tx, "deleting order", `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if !affected {
		return errors.NewNotFoundError(fmt.Sprintf("order with id %s not found", id))
	}
	return nil
}

func execAffected(ctx context.Context, tx *sqlx.Tx, op string, query string, args ...interface{}) (bool, error) {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
