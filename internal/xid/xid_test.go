package xid

import (
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceNumberFormat(t *testing.T) {
	at := time.Date(2024, 3, 5, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "F240305-1234", InvoiceNumber(at, 1234))
}

func TestInvoiceNumberUsesUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC-4", -4*60*60)
	at := time.Date(2024, 12, 31, 22, 0, 0, 0, loc)
	assert.Equal(t, "F250101-9999", InvoiceNumber(at, 9999))
}

func TestGeneratorNextStaysInRange(t *testing.T) {
	pattern := regexp.MustCompile(`^F\d{6}-\d{4}$`)
	g := NewGenerator()
	for n := 0; n < 500; n++ {
		number, at := g.Next()
		assert.Regexp(t, pattern, number)
		assert.Equal(t, time.UTC, at.Location())

		suffix, err := strconv.Atoi(number[len(number)-4:])
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, suffix, 1000)
		assert.LessOrEqual(t, suffix, 9999)
	}
}

func TestGeneratorUsesInjectedClock(t *testing.T) {
	g := &Generator{
		Now:    func() time.Time { return time.Date(2030, 7, 9, 8, 0, 0, 0, time.UTC) },
		Suffix: func() int { return 4242 },
	}
	number, at := g.Next()
	assert.Equal(t, "F300709-4242", number)
	assert.Equal(t, 2030, at.Year())
}
