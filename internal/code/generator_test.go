package code

import (
	"bytes"
	"errors"
	"strconv"
	"testing"
)

func TestGenerateRange(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 2000; i++ {
		c, err := g.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(c) != 6 {
			t.Fatalf("expected 6 digits, got %q", c)
		}
		n, err := strconv.Atoi(c)
		if err != nil {
			t.Fatalf("not numeric: %q", c)
		}
		if n < Min || n > Max {
			t.Fatalf("out of range: %d", n)
		}
		seen[c] = struct{}{}
	}
	if len(seen) < 1000 {
		t.Fatalf("expected varied codes, got %d distinct", len(seen))
	}
}

func TestGenerateZeroSourceYieldsMin(t *testing.T) {
	g := NewGeneratorFrom(bytes.NewReader(make([]byte, 64)))
	c, err := g.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if c != "100000" {
		t.Fatalf("expected 100000, got %q", c)
	}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateSourceError(t *testing.T) {
	g := NewGeneratorFrom(brokenReader{})
	if _, err := g.Generate(); err == nil {
		t.Fatal("expected error from broken source")
	}
}
