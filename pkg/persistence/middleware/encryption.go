package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// EnvelopeKey is the MiscData key holding the sealed payload of an encrypted session.
const EnvelopeKey = "__encrypted__"

// ErrNotEncrypted is returned when a stored session or record carries no envelope.
var ErrNotEncrypted = errors.New("session is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// ParseKeys decodes base64 keys into an EncryptionConfig. The first key is active.
func ParseKeys(active string, fallback ...string) (EncryptionConfig, error) {
	var cfg EncryptionConfig
	key, err := decodeKey(active)
	if err != nil {
		return cfg, fmt.Errorf("active key: %w", err)
	}
	cfg.ActiveKey = key
	for i, s := range fallback {
		key, err := decodeKey(s)
		if err != nil {
			return cfg, fmt.Errorf("fallback key %d: %w", i, err)
		}
		cfg.FallbackKeys = append(cfg.FallbackKeys, key)
	}
	return cfg, nil
}

// GenerateKey returns a random AES-256 key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes (AES-256), got %d", len(key))
	}
	return key, nil
}

// sealed is the part of a session that never reaches the store in clear text.
type sealed struct {
	Log      []domain.LogEntry `json:"log,omitempty"`
	MiscData map[string]any    `json:"misc_data,omitempty"`
}

type encryptionMiddleware struct {
	next   ports.SessionStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals the log and misc data of
// sessions and archive records with AES-GCM. Routing fields stay readable so
// listing and inspection keep working.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, session *domain.Session) error {
	envelope, err := m.seal(session)
	if err != nil {
		return err
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	envelope, err := m.next.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	data, err := m.open(envelope.MiscData)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	envelope.Log = data.Log
	envelope.MiscData = data.MiscData
	if envelope.MiscData == nil {
		envelope.MiscData = make(map[string]any)
	}
	return envelope, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) Archive(ctx context.Context, session *domain.Session, reason string) (domain.ArchiveRecord, error) {
	envelope, err := m.seal(session)
	if err != nil {
		return domain.ArchiveRecord{}, err
	}
	rec, err := m.next.Archive(ctx, envelope, reason)
	if err != nil {
		return rec, err
	}
	rec.Log = session.Log
	rec.MiscData = session.MiscData
	return rec, nil
}

func (m *encryptionMiddleware) History(ctx context.Context, sessionID string) ([]domain.ArchiveRecord, error) {
	records, err := m.next.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		data, err := m.open(records[i].MiscData)
		if err != nil {
			return nil, fmt.Errorf("archive record %s: %w", records[i].ID, err)
		}
		records[i].Log = data.Log
		records[i].MiscData = data.MiscData
	}
	return records, nil
}

// seal returns a copy of session whose log and misc data are replaced by the envelope.
func (m *encryptionMiddleware) seal(session *domain.Session) (*domain.Session, error) {
	plainText, err := json.Marshal(sealed{Log: session.Log, MiscData: session.MiscData})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session data: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session data: %w", err)
	}

	envelope := *session
	envelope.Log = nil
	envelope.MiscData = map[string]any{
		EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return &envelope, nil
}

func (m *encryptionMiddleware) open(misc map[string]any) (sealed, error) {
	var data sealed
	encoded, ok := misc[EnvelopeKey].(string)
	if !ok {
		return data, ErrNotEncrypted
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return data, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return data, fmt.Errorf("failed to decrypt session data: %w", err)
	}
	if err := json.Unmarshal(plainText, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal decrypted session data: %w", err)
	}
	return data, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
