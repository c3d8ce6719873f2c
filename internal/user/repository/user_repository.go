package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"comanda/internal/domain"
	"comanda/internal/errors"
)

const mysqlDuplicateEntry = 1062

type userRow struct {
	ID     string `db:"id"`
	AuthID string `db:"auth_id"`
	Email  string `db:"email"`
	Name   string `db:"name"`
}

func (r userRow) toDomain() domain.User {
	return domain.User{ID: r.ID, AuthID: r.AuthID, Email: r.Email, Name: r.Name}
}

type MySQLUserRepository struct {
	db *sqlx.DB
}

func NewMySQLUserRepository(db *sqlx.DB) *MySQLUserRepository {
	return &MySQLUserRepository{db: db}
}

func (r *MySQLUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, `SELECT id, auth_id, email, name FROM users WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("user with id %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}

	user := row.toDomain()
	return &user, nil
}

func (r *MySQLUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.User, error) {
	result := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT id, auth_id, email, name FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("building users query: %w", err)
	}

	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}

	for _, row := range rows {
		result[row.ID] = row.toDomain()
	}
	return result, nil
}

// FindOrCreateByAuthID resolves the identity provider subject to an internal
// user, creating the user on first sight.
func (r *MySQLUserRepository) FindOrCreateByAuthID(ctx context.Context, authID string, email string, name string) (*domain.User, error) {
	user, err := r.findByAuthID(ctx, authID)
	if err == nil {
		return user, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	row := userRow{ID: uuid.NewString(), AuthID: authID, Email: email, Name: name}
	_, err = r.db.NamedExecContext(ctx,
		`INSERT INTO users (id, auth_id, email, name) VALUES (:id, :auth_id, :email, :name)`, row)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stderrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			// Provisioned concurrently by another request.
			return r.findByAuthID(ctx, authID)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	created := row.toDomain()
	return &created, nil
}

func (r *MySQLUserRepository) findByAuthID(ctx context.Context, authID string) (*domain.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, `SELECT id, auth_id, email, name FROM users WHERE auth_id = ?`, authID)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by auth id: %w", err)
	}

	user := row.toDomain()
	return &user, nil
}
