package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"comanda/internal/domain"
	"comanda/internal/errors"
)

type restaurantRow struct {
	ID            string `db:"id"`
	UserID        string `db:"user_id"`
	Name          string `db:"name"`
	DeliveryPrice int64  `db:"delivery_price"`
}

type menuItemRow struct {
	ID           string `db:"id"`
	RestaurantID string `db:"restaurant_id"`
	Name         string `db:"name"`
	Price        int64  `db:"price"`
}

// MySQLRestaurantRepository is a read-only view of restaurants and their
// current menus.
type MySQLRestaurantRepository struct {
	db *sqlx.DB
}

func NewMySQLRestaurantRepository(db *sqlx.DB) *MySQLRestaurantRepository {
	return &MySQLRestaurantRepository{db: db}
}

func (r *MySQLRestaurantRepository) FindByID(ctx context.Context, id string) (*domain.Restaurant, error) {
	var row restaurantRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, user_id, name, delivery_price
		FROM restaurants
		WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("restaurant with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying restaurant by id: %w", err)
	}

	restaurants, err := r.withMenus(ctx, []restaurantRow{row})
	if err != nil {
		return nil, err
	}

	return &restaurants[0], nil
}

func (r *MySQLRestaurantRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Restaurant, error) {
	result := make(map[string]domain.Restaurant, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, user_id, name, delivery_price
		FROM restaurants
		WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("building restaurants query: %w", err)
	}

	var rows []restaurantRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying restaurants: %w", err)
	}

	restaurants, err := r.withMenus(ctx, rows)
	if err != nil {
		return nil, err
	}

	for _, restaurant := range restaurants {
		result[restaurant.ID] = restaurant
	}
	return result, nil
}

func (r *MySQLRestaurantRepository) FindByOwner(ctx context.Context, userID string) ([]domain.Restaurant, error) {
	var rows []restaurantRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, name, delivery_price
		FROM restaurants
		WHERE user_id = ?
		ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying restaurants by owner: %w", err)
	}

	return r.withMenus(ctx, rows)
}

func (r *MySQLRestaurantRepository) withMenus(ctx context.Context, rows []restaurantRow) ([]domain.Restaurant, error) {
	if len(rows) == 0 {
		return []domain.Restaurant{}, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	query, args, err := sqlx.In(`
		SELECT id, restaurant_id, name, price
		FROM menu_items
		WHERE restaurant_id IN (?)
		ORDER BY restaurant_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("building menu items query: %w", err)
	}

	var items []menuItemRow
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("querying menu items: %w", err)
	}

	menus := make(map[string][]domain.MenuItem, len(rows))
	for _, item := range items {
		menus[item.RestaurantID] = append(menus[item.RestaurantID], domain.MenuItem{
			ID:    item.ID,
			Name:  item.Name,
			Price: item.Price,
		})
	}

	restaurants := make([]domain.Restaurant, len(rows))
	for i, row := range rows {
		restaurants[i] = domain.Restaurant{
			ID:            row.ID,
			UserID:        row.UserID,
			Name:          row.Name,
			DeliveryPrice: row.DeliveryPrice,
			MenuItems:     menus[row.ID],
		}
	}
	return restaurants, nil
}
