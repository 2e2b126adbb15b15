package auth

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
)

func TestStoreSchemaAndUser(t *testing.T) {
	// Load .env file (fallback to example.env) for DATABASE_URL
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load("../../example.env")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	st := NewStore(pool, 1)
	require.NoError(t, st.InitSchema(ctx))
	require.NoError(t, st.EnsureDefaultRoles(ctx))

	u := &User{Email: "test@example.com", Name: "Test", Provider: "oidc", Subject: "sub123"}
	_, err = st.UpsertUser(ctx, u)
	require.NoError(t, err)
	require.NoError(t, st.AddRole(ctx, u.ID, "user"))

	ok, err := st.HasRole(ctx, u.ID, "user")
	require.NoError(t, err)
	require.True(t, ok)

	sess, err := st.CreateSession(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, sess)

	_, _, err = st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
}
