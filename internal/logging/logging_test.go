package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "json", "warn")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("stock low", "product_id", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "stock low", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, float64(3), entry["product_id"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "TEXT", "debug")
	require.NoError(t, err)

	logger.Debug("sale", "numero", "F240101-1234")
	assert.Contains(t, buf.String(), "numero=F240101-1234")
}

func TestNewRejectsUnknownValues(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "xml", "info")
	assert.Error(t, err)

	_, err = New(&bytes.Buffer{}, "text", "loud")
	assert.Error(t, err)
}
