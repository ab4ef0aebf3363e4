package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// Config holds the MySQL connection settings.
type Config struct {
	User     string
	Pass     string
	Host     string
	Port     string
	Name     string
	Attempts int // connection attempts before giving up, default 5
}

// DSN renders the driver connection string. parseTime maps DATETIME to
// time.Time and loc=UTC keeps stored times consistent.
func (c Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Pass
	mc.Net = "tcp"
	mc.Addr = c.Host + ":" + c.Port
	mc.DBName = c.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Collation = "utf8mb4_unicode_ci"
	return mc.FormatDSN()
}

// Open connects to MySQL and verifies the connection, retrying with a
// linear backoff while the server is still coming up.
func Open(cfg Config, log logrus.FieldLogger) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 5
	}
	for i := 1; ; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			return db, nil
		}
		if i == attempts {
			db.Close()
			return nil, fmt.Errorf("ping database after %d attempts: %w", attempts, err)
		}
		log.WithError(err).WithField("attempt", i).Warn("database not ready, retrying")
		time.Sleep(time.Duration(i) * time.Second)
	}
}
