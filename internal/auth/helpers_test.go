package auth

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAbsoluteRedirectURL(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "http://localhost:32180/anything", nil)
	got := absoluteRedirectURL(req, "/next", "/fallback")
	require.Equal(t, "http://localhost:32180/next", got)

	reqTLS := httptest.NewRequest(http.MethodGet, "http://localhost:32180/anything", nil)
	reqTLS.TLS = &tls.ConnectionState{}
	got = absoluteRedirectURL(reqTLS, "", "/auth/login")
	require.Equal(t, "https://localhost:32180/auth/login", got, "expected https fallback")

	got = absoluteRedirectURL(reqTLS, "https://example.com/done", "/auth/login")
	require.Equal(t, "https://example.com/done", got, "expected absolute URL untouched")
}
