package xid

import (
	"fmt"
	"math/rand"
	"time"
)

const (
	suffixMin = 1000
	suffixMax = 9999
)

// InvoiceNumber formats F<yy><mm><dd>-<suffix> using the UTC calendar date of at.
func InvoiceNumber(at time.Time, suffix int) string {
	at = at.UTC()
	return fmt.Sprintf("F%02d%02d%02d-%04d", at.Year()%100, int(at.Month()), at.Day(), suffix)
}

// Generator hands out invoice numbers with a random four digit suffix.
// Uniqueness is left to the store's unique index.
type Generator struct {
	Now    func() time.Time
	Suffix func() int
}

func NewGenerator() *Generator {
	return &Generator{
		Now:    func() time.Time { return time.Now().UTC() },
		Suffix: func() int { return suffixMin + rand.Intn(suffixMax-suffixMin+1) },
	}
}

// Next returns a fresh number and the issue time it was derived from.
func (g *Generator) Next() (string, time.Time) {
	at := g.Now().UTC()
	return InvoiceNumber(at, g.Suffix()), at
}
