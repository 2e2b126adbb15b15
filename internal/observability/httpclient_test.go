package observability

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithHeaders_InsertsHeaders(t *testing.T) {
	base := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "v", req.Header.Get("X-Test"), "header not injected")
		// Also ensure we don't override already-set headers.
		assert.Equal(t, "keep", req.Header.Get("X-Existing"), "existing header overwritten")
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok"))}, nil
	})}

	c := WithHeaders(base, map[string]string{"X-Test": "v", "X-Existing": "override"})
	req, err := http.NewRequest(http.MethodGet, "http://example.test", nil)
	require.NoError(t, err)
	req.Header.Set("X-Existing", "keep")
	_, err = c.Do(req)
	require.NoError(t, err)
}

func TestNewHTTPClient_NotNil(t *testing.T) {
	assert.NotNil(t, NewHTTPClient(nil))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
