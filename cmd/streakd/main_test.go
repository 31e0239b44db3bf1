package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/streakhub/streak-hub/config"
	"github.com/streakhub/streak-hub/internal/infrastructure/persistence/memory"
	"github.com/streakhub/streak-hub/internal/infrastructure/persistence/sqlite"
	"github.com/streakhub/streak-hub/pkg/logger"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--store", "memory", "--env-file=.env", "--log-level", "debug"})
	require.NoError(t, err)
	assert.Equal(t, "memory", opts.store)
	assert.Equal(t, ".env", opts.envFile)
	assert.Equal(t, "debug", opts.logLevel)

	_, err = parseFlags([]string{"--nope"})
	assert.Error(t, err)
}

func TestRun_HashSecret(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"--hash-secret", "Валера"}, &out))

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("Валера")))
}

func TestRun_MissingEnvFile(t *testing.T) {
	err := run([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "load env file")
}

func TestOpenStore(t *testing.T) {
	log := logger.Discard()
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := openStore(ctx, config.StoreConfig{Driver: config.DriverMemory}, log)
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, s)
		assert.NoError(t, s.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hub.db")
		s, err := openStore(ctx, config.StoreConfig{Driver: config.DriverSQLite, SQLitePath: path}, log)
		require.NoError(t, err)
		assert.IsType(t, &sqlite.Store{}, s)
		assert.NoError(t, s.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := openStore(ctx, config.StoreConfig{Driver: "etcd"}, log)
		assert.ErrorContains(t, err, "unknown store driver")
	})
}

func TestBuildHub_RestoresState(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("STORE_SQLITE_PATH", filepath.Join(t.TempDir(), "hub.db"))
	cfg, err := config.Load()
	require.NoError(t, err)

	ctx := context.Background()
	log := logger.Discard()

	h, err := buildHub(ctx, cfg, log)
	require.NoError(t, err)
	id, err := h.JoinWithSecret(ctx, "Alice", "Валера")
	require.NoError(t, err)
	require.NoError(t, h.IncrementStreak(ctx, id))
	require.NoError(t, shutdown(h, cfg, log))

	h, err = buildHub(ctx, cfg, log)
	require.NoError(t, err)
	defer h.Close()

	p, err := h.Participant(id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, 1, p.CurrentStreak)
}
