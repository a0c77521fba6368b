package utilities

import (
	"path/filepath"
	"testing"
)

func TestNewSnowflakeIDUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewSnowflakeID()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestSetSnowflakeNodeRejectsOutOfRange(t *testing.T) {
	if err := SetSnowflakeNode(-1); err == nil {
		t.Fatal("expected error for negative node")
	}
	if err := SetSnowflakeNode(3); err != nil {
		t.Fatalf("set node: %v", err)
	}
}

func TestNewKSUIDLength(t *testing.T) {
	if got := len(NewKSUID()); got != 27 {
		t.Fatalf("expected 27 chars, got %d", got)
	}
}

func TestInitWithRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.log")
	lg, err := Init(LogConfig{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	lg.Info("hello")
	_ = lg.Sync()
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]string{
		"debug":   "debug",
		"warning": "warn",
		"error":   "error",
		"bogus":   "info",
	}
	for in, want := range tests {
		if got := levelFromString(in).String(); got != want {
			t.Fatalf("level %q: expected %s, got %s", in, want, got)
		}
	}
}
