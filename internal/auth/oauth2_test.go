package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOAuth2Validation(t *testing.T) {
	t.Parallel()
	_, err := NewOAuth2(context.Background(), &Store{}, OAuth2Options{})
	require.Error(t, err, "expected error when oauth2 endpoints missing")
}

func TestNormalizeDefaultRoles(t *testing.T) {
	t.Parallel()
	roles := normalizeDefaultRoles([]string{"Admin", "user", "  "})
	require.Len(t, roles, 2)
	assert.Equal(t, []string{"admin", "user"}, roles)
}

func TestExtractRoles(t *testing.T) {
	t.Parallel()
	payload := map[string]any{
		"groups": []any{"Admin", "dev", "admin"},
	}
	roles := extractRoles(payload, "groups")
	require.Len(t, roles, 2, "expected deduped roles")
	assert.Equal(t, []string{"admin", "dev"}, roles)

	assert.Empty(t, extractRoles(payload, "missing"), "expected empty slice for missing path")
}

func TestDig(t *testing.T) {
	t.Parallel()
	payload := map[string]any{
		"profile": map[string]any{
			"email": "user@example.com",
		},
	}
	val, ok := dig(payload, "profile.email")
	require.True(t, ok, "expected to find nested field")
	assert.Equal(t, "user@example.com", val)

	_, ok = dig(payload, "profile.missing")
	assert.False(t, ok, "expected missing path to be false")
}

func TestAppendLogoutRedirect(t *testing.T) {
	t.Parallel()
	out := appendLogoutRedirect("https://example.com/logout?foo=bar", "redirect_uri", "https://app.local/auth/login")
	want := "https://example.com/logout?foo=bar&redirect_uri=https%3A%2F%2Fapp.local%2Fauth%2Flogin"
	assert.Equal(t, want, out)
}
