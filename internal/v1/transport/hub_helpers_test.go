package transport

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithOrigin(t *testing.T, origin string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://localhost/ws", nil)
	require.NoError(t, err)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestValidateOrigin(t *testing.T) {
	allowed := []string{"http://localhost:3000", "https://app.example.com"}

	tests := []struct {
		name    string
		origin  string
		wantErr bool
	}{
		{"allowed http origin", "http://localhost:3000", false},
		{"allowed https origin", "https://app.example.com", false},
		{"no origin header allows non-browser clients", "", false},
		{"unlisted host", "https://evil.example.com", true},
		{"scheme mismatch", "http://app.example.com", true},
		{"port mismatch", "http://localhost:9999", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateOrigin(requestWithOrigin(t, tt.origin), allowed)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOrigin_TrimsAllowlistWhitespace(t *testing.T) {
	err := validateOrigin(requestWithOrigin(t, "https://app.example.com"),
		[]string{" https://app.example.com "})
	assert.NoError(t, err)
}

func TestAllowedOriginsFromEnv(t *testing.T) {
	t.Setenv("TEST_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	origins := AllowedOriginsFromEnv("TEST_ALLOWED_ORIGINS", []string{"http://fallback.test"})
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, origins)
}

func TestAllowedOriginsFromEnv_Default(t *testing.T) {
	t.Setenv("TEST_ALLOWED_ORIGINS", "")
	origins := AllowedOriginsFromEnv("TEST_ALLOWED_ORIGINS", []string{"http://fallback.test"})
	assert.Equal(t, []string{"http://fallback.test"}, origins)
}
