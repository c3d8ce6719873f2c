package mysql

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"comanda/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:            "db",
		Port:            3307,
		User:            "comanda",
		Password:        "secret",
		Name:            "orders",
		ConnMaxLifetime: time.Minute,
	})

	assert.Equal(t, "comanda:secret@tcp(db:3307)/orders?parseTime=true&loc=UTC", dsn)
}

func TestWrap(t *testing.T) {
	db := &sql.DB{}
	x := Wrap(db)

	assert.Equal(t, db, x.DB)
	assert.Equal(t, "mysql", x.DriverName())
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir(migrationsDir)
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}
