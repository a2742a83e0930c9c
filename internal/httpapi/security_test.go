package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	rec := do(t, newTestAPI(t, Options{}).Handler(), http.MethodGet, "/healthz", "")

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"), "request id is echoed for log correlation")
}

func TestCORSPreflight(t *testing.T) {
	h := newTestAPI(t, Options{AllowedOrigin: "http://pos.local"}).Handler()

	rec := do(t, h, http.MethodOptions, "/api/facturas", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://pos.local", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")

	rec = do(t, newTestAPI(t, Options{}).Handler(), http.MethodGet, "/api/productos", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"nombre":"%s"}`, veryLong)

	rec := do(t, newTestAPI(t, Options{}).Handler(), http.MethodPost, "/api/clientes", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitReturns429(t *testing.T) {
	h := newTestAPI(t, Options{RateLimitPerMinute: 3}).Handler()

	for i := 0; i < 3; i++ {
		rec := do(t, h, http.MethodGet, "/api/productos", "")
		require.Equal(t, http.StatusOK, rec.Code, "request %d before limit", i+1)
	}
	rec := do(t, h, http.MethodGet, "/api/productos", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])

	// Health checks sit outside the limited group.
	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerErrorsHideDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusInternalServerError, fmt.Errorf("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestStaticFrontendServed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>POS</h1>"), 0o644))

	h := newTestAPI(t, Options{PublicDir: dir}).Handler()

	rec := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>POS</h1>")

	rec = do(t, h, http.MethodGet, "/api/productos", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
