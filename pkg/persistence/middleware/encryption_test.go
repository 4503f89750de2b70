package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, next ports.SessionStore, cfg middleware.EncryptionConfig) ports.SessionStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	store := encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunSessionStoreContract(t, store)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	s := domain.NewSession("u1")
	s.FlowID = "onboarding"
	s.CurrentState = "AskCrop"
	s.MiscData["name"] = "Asha"
	s.Append(domain.LogEntry{State: "Welcome", Event: "*", Payload: "Asha"})
	require.NoError(t, secure.Save(ctx, s))

	stored, err := underlying.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "AskCrop", stored.CurrentState, "routing fields stay readable")
	assert.Empty(t, stored.Log)
	assert.NotContains(t, stored.MiscData, "name")
	assert.Contains(t, stored.MiscData, middleware.EnvelopeKey)

	loaded, err := secure.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", loaded.MiscData["name"])
	require.Len(t, loaded.Log, 1)
	assert.Equal(t, "Asha", loaded.Log[0].Payload)
}

func TestEncryptionMiddleware_Archive(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	s := domain.NewSession("u1")
	s.FlowID = "feedback"
	s.MiscData["rating"] = "good"
	rec, err := secure.Archive(ctx, s, domain.ReasonFinished)
	require.NoError(t, err)
	assert.Equal(t, "good", rec.MiscData["rating"])

	raw, err := underlying.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.NotContains(t, raw[0].MiscData, "rating")

	history, err := secure.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "good", history[0].MiscData["rating"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	oldStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	s := domain.NewSession("u1")
	s.MiscData["data"] = "encrypted-with-old-key"
	require.NoError(t, oldStore.Save(ctx, s))

	newStore := encrypted(t, underlying, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := newStore.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "encrypted-with-old-key", loaded.MiscData["data"])

	loaded.MiscData["data"] = "encrypted-with-new-key"
	require.NoError(t, newStore.Save(ctx, loaded))

	_, err = oldStore.Load(ctx, "u1")
	assert.Error(t, err, "the old key alone cannot open data sealed with the new one")
}

func TestEncryptionMiddleware_PlainSessionFails(t *testing.T) {
	underlying := memory.NewStore()
	require.NoError(t, underlying.Save(context.Background(), domain.NewSession("u1")))

	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	_, err := secure.Load(context.Background(), "u1")
	assert.ErrorIs(t, err, middleware.ErrNotEncrypted)

	_, err = secure.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.Error(t, err)
}

func TestParseKeys(t *testing.T) {
	active := generateKey(t)
	old := generateKey(t)

	cfg, err := middleware.ParseKeys(
		base64.StdEncoding.EncodeToString(active),
		base64.StdEncoding.EncodeToString(old),
	)
	require.NoError(t, err)
	assert.Equal(t, active, cfg.ActiveKey)
	assert.Equal(t, [][]byte{old}, cfg.FallbackKeys)

	generated, err := middleware.GenerateKey()
	require.NoError(t, err)
	cfg, err = middleware.ParseKeys(generated)
	require.NoError(t, err)
	assert.Len(t, cfg.ActiveKey, 32)

	_, err = middleware.ParseKeys("not base64!")
	assert.Error(t, err)

	_, err = middleware.ParseKeys(base64.StdEncoding.EncodeToString([]byte("too short")))
	assert.Error(t, err)
}
