//go:build integration
// +build integration

package neo4j

import (
	"context"
	"errors"
	"os"
	"testing"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.kirha.ai/appmigrate"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func getTestConfig() Config {
	return Config{
		URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Username: getEnv("NEO4J_USERNAME", "neo4j"),
		Password: getEnv("NEO4J_PASSWORD", "testpassword"),
		Database: getEnv("NEO4J_DATABASE", "neo4j"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	store, err := New(ctx, getTestConfig(), nopLogger{})
	require.NoError(t, err)

	cleanupDatabase(t, store)
	t.Cleanup(func() {
		cleanupDatabase(t, store)
		_ = store.Close()
	})

	require.NoError(t, store.Init(ctx))
	return store
}

func cleanupDatabase(t *testing.T, store *Store) {
	t.Helper()

	ctx := context.Background()
	session := store.session(ctx, neo4jdriver.AccessModeWrite)
	defer session.Close(ctx)

	_, _ = session.Run(ctx, "MATCH (n) DETACH DELETE n", nil)
}

func TestIntegrationRecordLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, "0001_init", "billing")
	require.NoError(t, err)
	assert.Equal(t, appmigrate.StatusInProcess, first.Status)
	assert.False(t, first.CreatedAt.IsZero())

	second, err := store.Create(ctx, "0001_init", "billing")
	require.NoError(t, err)

	n, err := store.Count(ctx, "0001_init", "billing")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	found, err := store.Find(ctx, "0001_init", "billing")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, second.Key, found.Key)

	require.NoError(t, store.SetStatus(ctx, first.Key, appmigrate.StatusSuccess))
	got, err := store.Get(ctx, first.Key)
	require.NoError(t, err)
	assert.Equal(t, appmigrate.StatusSuccess, got.Status)

	require.NoError(t, store.Delete(ctx, first.Key))
	_, err = store.Get(ctx, first.Key)
	assert.ErrorIs(t, err, appmigrate.ErrRecordNotFound)

	err = store.SetStatus(ctx, first.Key, appmigrate.StatusFailed)
	assert.ErrorIs(t, err, appmigrate.ErrRecordNotFound)

	missing, err := store.Find(ctx, "0002_other", "billing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestIntegrationExecWithParams(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Exec(ctx, "CREATE (:Tenant {name: $name})", map[string]any{"name": "acme"})
	require.NoError(t, err)

	rows, err := store.Exec(ctx, "MATCH (t:Tenant) RETURN t.name AS name")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "acme", rows[0]["name"])

	_, err = store.Exec(ctx, "RETURN 1", "not", "a map")
	assert.Error(t, err)
}

func TestIntegrationAtomicRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Atomic(ctx, func(ctx context.Context, exec appmigrate.Executor) error {
		if _, err := exec.Exec(ctx, "CREATE (:Tenant {name: 'rolled-back'})"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, appmigrate.IsAtomicScopeFailure(err))

	rows, err := store.Exec(ctx, "MATCH (t:Tenant) RETURN count(t) AS n")
	require.NoError(t, err)
	assert.EqualValues(t, 0, rows[0]["n"])
}

func TestIntegrationAtomicCommits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Atomic(ctx, func(ctx context.Context, exec appmigrate.Executor) error {
		_, err := exec.Exec(ctx, "CREATE (:Tenant {name: 'kept'})")
		return err
	})
	require.NoError(t, err)

	rows, err := store.Exec(ctx, "MATCH (t:Tenant) RETURN count(t) AS n")
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows[0]["n"])
}
