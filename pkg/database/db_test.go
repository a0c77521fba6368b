package database

import (
	"net/url"
	"testing"
)

func TestSessionDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "no settings",
			cfg:  Config{DSN: "postgres://u:p@localhost/db"},
			want: "",
		},
		{
			name: "timezone on dsn with query",
			cfg:  Config{DSN: "postgres://u:p@localhost/db?sslmode=disable", TimeZone: "UTC"},
			want: "-c TimeZone=UTC",
		},
		{
			name: "both settings",
			cfg:  Config{DSN: "postgres://u:p@localhost/db", TimeZone: "Asia/Shanghai", ClientEncoding: "UTF8"},
			want: "-c TimeZone=Asia/Shanghai -c client_encoding=UTF8",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sessionDSN(tt.cfg)
			u, err := url.Parse(got)
			if err != nil {
				t.Fatalf("parse %q: %v", got, err)
			}
			if opts := u.Query().Get("options"); opts != tt.want {
				t.Fatalf("expected options %q, got %q", tt.want, opts)
			}
		})
	}
}

func TestQuoteOptionEscapesSpaces(t *testing.T) {
	if got := quoteOption(`a b\c`); got != `a\ b\\c` {
		t.Fatalf("unexpected escape: %q", got)
	}
}
