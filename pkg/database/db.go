package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const driverName = "postgres"

type Config struct {
	DSN            string
	MaxConns       int
	Timeout        time.Duration
	TimeZone       string
	ClientEncoding string
}

// Connect opens a *sqlx.DB and verifies connectivity with a ping
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	db, err := sqlx.Open(driverName, sessionDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// sessionDSN appends session settings as libpq options so every pooled
// connection gets them, not only the one used for the ping.
func sessionDSN(cfg Config) string {
	var opts []string
	if cfg.TimeZone != "" {
		opts = append(opts, "-c TimeZone="+quoteOption(cfg.TimeZone))
	}
	if cfg.ClientEncoding != "" {
		opts = append(opts, "-c client_encoding="+quoteOption(cfg.ClientEncoding))
	}
	if len(opts) == 0 {
		return cfg.DSN
	}
	sep := "?"
	if strings.Contains(cfg.DSN, "?") {
		sep = "&"
	}
	return cfg.DSN + sep + "options=" + url.QueryEscape(strings.Join(opts, " "))
}

// quoteOption escapes characters libpq treats specially inside options.
func quoteOption(s string) string {
	r := strings.NewReplacer(`\`, `\\`, " ", `\ `)
	return r.Replace(s)
}
