// Package jwt signs MQTT credential tokens with the service RSA key.
package jwt

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.scenegrid.dev/internal/common/secrets"
)

var (
	ErrSigningKeyMissing = errors.New("signing key material missing")
	ErrInvalidKeyFormat  = errors.New("invalid key format")
)

// KeyManager holds the RSA private key used to sign tokens. Key material
// comes from a secrets provider so production deployments can keep it in
// Vault or a cloud secret manager while dev setups mount a PEM file.
type KeyManager struct {
	mu         sync.RWMutex
	privateKey *rsa.PrivateKey
	keyID      string
}

// NewKeyManager creates an empty key manager. Call Load before signing.
func NewKeyManager() *KeyManager {
	return &KeyManager{}
}

// Load fetches and parses the PEM private key named keyName from the
// provider. A missing or unparsable key leaves the manager unloaded;
// issuance then fails per request rather than at startup, since only the
// token paths need the key.
func (km *KeyManager) Load(ctx context.Context, provider secrets.Provider, keyName string) error {
	material, err := provider.Get(ctx, keyName)
	if err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			slog.Error("signing key not found", "provider", provider.Name(), "key", keyName)
			return ErrSigningKeyMissing
		}
		return fmt.Errorf("failed to fetch signing key: %w", err)
	}

	key, err := parsePrivateKey([]byte(material))
	if err != nil {
		return err
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	km.privateKey = key
	km.keyID = deriveKeyID(&key.PublicKey)

	slog.Info("loaded token signing key", "provider", provider.Name(), "keyId", km.keyID)
	return nil
}

// SetKey installs an already parsed private key. Used by tests.
func (km *KeyManager) SetKey(key *rsa.PrivateKey) {
	km.mu.Lock()
	defer km.mu.Unlock()
	km.privateKey = key
	km.keyID = deriveKeyID(&key.PublicKey)
}

// PrivateKey returns the signing key, or nil when no key is loaded.
func (km *KeyManager) PrivateKey() *rsa.PrivateKey {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.privateKey
}

// PublicKey returns the verification key, or nil when no key is loaded.
func (km *KeyManager) PublicKey() *rsa.PublicKey {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if km.privateKey == nil {
		return nil
	}
	return &km.privateKey.PublicKey
}

// KeyID returns the identifier derived from the public key.
func (km *KeyManager) KeyID() string {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.keyID
}

func parsePrivateKey(material []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(material)
	if block == nil {
		return nil, ErrInvalidKeyFormat
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}

	// Try PKCS8 format
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrInvalidKeyFormat
	}
	return rsaKey, nil
}

func deriveKeyID(key *rsa.PublicKey) string {
	pubBytes, _ := x509.MarshalPKIXPublicKey(key)
	hash := sha256.Sum256(pubBytes)
	return base64.RawURLEncoding.EncodeToString(hash[:8])
}
