package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		query  string
		want   int
	}{
		{"disabled", "", "", "", http.StatusOK},
		{"missing key", "s3cret", "", "", http.StatusUnauthorized},
		{"wrong key", "s3cret", "nope", "", http.StatusUnauthorized},
		{"header key", "s3cret", "s3cret", "", http.StatusOK},
		{"query key", "s3cret", "", "s3cret", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			target := "/api/v1/sites"
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				r.Header.Set("X-API-Key", tc.header)
			}
			rec := httptest.NewRecorder()

			Auth(tc.token)(okHandler).ServeHTTP(rec, r)

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestExtractAPIKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?token=from-query", nil)
	assert.Equal(t, "from-query", extractAPIKey(r))

	r.Header.Set("X-API-Key", "from-header")
	assert.Equal(t, "from-header", extractAPIKey(r))
}
