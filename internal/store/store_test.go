package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/orthogate/internal/store"
	"github.com/kiranshivaraju/orthogate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("orthogate_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))
	// A second run is a no-op.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newKey(name, prefix string, scopes ...string) *models.APIKey {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   "bcrypt-hash-" + uuid.NewString(),
		KeyPrefix: prefix,
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGetByPrefix(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	key := newKey("dashboard", "og_abcde", models.ScopeRead, models.ScopeAnalyze)
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "og_abcde")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, "dashboard", keys[0].Name)
	assert.Equal(t, []string{"read", "analyze"}, keys[0].Scopes)
	assert.Nil(t, keys[0].LastUsedAt)
}

func TestAPIKey_DuplicateHash(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	key := newKey("one", "og_dupe1")
	require.NoError(t, s.CreateAPIKey(ctx, key))

	again := newKey("two", "og_dupe2")
	again.KeyHash = key.KeyHash
	assert.ErrorIs(t, s.CreateAPIKey(ctx, again), store.ErrDuplicateKey)
}

func TestAPIKey_ListAndRevoke(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	first := newKey("first", "og_first")
	second := newKey("second", "og_secnd")
	require.NoError(t, s.CreateAPIKey(ctx, first))
	require.NoError(t, s.CreateAPIKey(ctx, second))

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, s.RevokeAPIKey(ctx, first.ID))
	assert.ErrorIs(t, s.RevokeAPIKey(ctx, first.ID), store.ErrNotFound)

	keys, err = s.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, second.ID, keys[0].ID)

	byPrefix, err := s.GetAPIKeyByPrefix(ctx, "og_first")
	require.NoError(t, err)
	assert.Empty(t, byPrefix)
}

func TestAPIKey_UpdateLastUsed(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	key := newKey("svc", "og_lastu")
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))

	keys, err := s.GetAPIKeyByPrefix(ctx, "og_lastu")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)
}

// --- Document Tests ---

func TestDocument_PutAndGet(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	doc := &models.Document{
		Collection: models.CollectionAnalyses,
		Key:        uuid.NewString(),
		Owner:      "caller-1",
		Body:       json.RawMessage(`{"modelUsed": "ortho-v3", "studiesAnalyzed": 2}`),
	}
	require.NoError(t, s.PutDocument(ctx, doc))
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := s.GetDocument(ctx, models.CollectionAnalyses, doc.Key)
	require.NoError(t, err)
	assert.Equal(t, "caller-1", got.Owner)
	assert.JSONEq(t, string(doc.Body), string(got.Body))
}

func TestDocument_PutReplacesBody(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	key := uuid.NewString()
	require.NoError(t, s.PutDocument(ctx, &models.Document{
		Collection: "notes", Key: key, Body: json.RawMessage(`{"v": 1}`),
	}))
	require.NoError(t, s.PutDocument(ctx, &models.Document{
		Collection: "notes", Key: key, Body: json.RawMessage(`{"v": 2}`),
	}))

	got, err := s.GetDocument(ctx, "notes", key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v": 2}`, string(got.Body))
}

func TestDocument_GetMissing(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))

	_, err := s.GetDocument(context.Background(), models.CollectionAnalyses, "absent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDocument_ListByOwner(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	for i, owner := range []string{"alice", "bob", "alice"} {
		require.NoError(t, s.PutDocument(ctx, &models.Document{
			Collection: models.CollectionAnalyses,
			Key:        uuid.NewString(),
			Owner:      owner,
			Body:       json.RawMessage(`{"n": ` + string(rune('0'+i)) + `}`),
		}))
	}

	docs, err := s.ListDocuments(ctx, store.DocumentFilter{Collection: models.CollectionAnalyses, Owner: "alice"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	all, err := s.ListDocuments(ctx, store.DocumentFilter{Collection: models.CollectionAnalyses, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
