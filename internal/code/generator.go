package code

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	Min = 100000
	Max = 999999
)

var span = big.NewInt(Max - Min + 1)

// Generator produces 6-digit one-time codes for email confirmation and
// password reset.
type Generator struct {
	rand io.Reader
}

// NewGenerator reads from crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// NewGeneratorFrom reads from r. Tests use it to pin the output.
func NewGeneratorFrom(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// Generate returns a decimal string in [100000, 999999].
func (g *Generator) Generate() (string, error) {
	n, err := rand.Int(g.rand, span)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+Min), nil
}
