package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"comanda/internal/infrastructure/mysql"
)

const defaultTestDSN = "root:@tcp(localhost:3306)/comanda_test?parseTime=true&loc=UTC"

// SetupTestDB opens the integration database (COMANDA_TEST_DSN or a local
// comanda_test schema) and skips the test when it is unreachable.
func SetupTestDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("COMANDA_TEST_DSN")
	if dsn == "" {
		dsn = defaultTestDSN
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("test database not available: %v", err)
	}

	return db
}

// SetupTestTables applies the goose migrations.
func SetupTestTables(t *testing.T, db *sql.DB) *sqlx.DB {
	if err := mysql.MigrateUp(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return mysql.Wrap(db)
}

// CleanupTestDB empties every table and closes db.
func CleanupTestDB(t *testing.T, db *sql.DB) {
	if db == nil {
		return
	}

	tables := []string{
		"order_outbox", "order_retirement_tasks", "processed_webhook_events",
		"order_items", "orders", "menu_items", "restaurants", "users",
	}
	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}

	db.Close()
}
