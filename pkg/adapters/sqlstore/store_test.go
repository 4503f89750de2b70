package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.SessionStore = (*Store)(nil)
	_ ports.Deduplicator = (*Store)(nil)
)

func openSQLite(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "data", "parley.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, openSQLite(t))
}

func TestSQLiteDedup_Contract(t *testing.T) {
	ports.RunDeduplicatorContract(t, openSQLite(t))
}

func TestSQLiteStore_SaveOverwrites(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	session := domain.NewSession("u1")
	session.CurrentState = "A"
	require.NoError(t, s.Save(ctx, session))
	session.CurrentState = "B"
	require.NoError(t, s.Save(ctx, session))

	loaded, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "B", loaded.CurrentState)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
}

func TestSQLiteDedup_TTL(t *testing.T) {
	s := openSQLite(t, WithDedupTTL(50*time.Millisecond))
	ctx := context.Background()

	first, err := s.Claim(ctx, "SM1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.Claim(ctx, "SM1")
	require.NoError(t, err)
	assert.False(t, again)

	time.Sleep(100 * time.Millisecond)

	later, err := s.Claim(ctx, "SM1")
	require.NoError(t, err)
	assert.True(t, later, "expired ids are claimable again")

	n, err := s.PruneDedup(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRebind(t *testing.T) {
	q := `INSERT INTO t (a, b) VALUES (?, ?)`
	assert.Equal(t, q, rebind(SQLite, q))
	assert.Equal(t, `INSERT INTO t (a, b) VALUES ($1, $2)`, rebind(Postgres, q))
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", SQLite, false},
		{"SQLite3", SQLite, false},
		{"postgresql", Postgres, false},
		{"pg", Postgres, false},
		{"mysql", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), SQLite, "")
	assert.Error(t, err)
}
