// Package security is the thin read-side service over vulnerabilities,
// BOM entries, and SSH keys, plus the secrets vault's encrypt/decrypt
// boundary (§3 Secret: "Plaintext MUST never be persisted or logged").
package security

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/fleetwatch/controlplane/internal/store"
)

// Vault encrypts secret values before they reach the store and decrypts
// them only for the elevated-role reveal path (§3, §9).
type Vault struct {
	aead  chacha20poly1305.AEAD
	store *store.Store
}

// NewVault constructs a Vault from a 32-byte key (FLEET_SECRET_KEY,
// internal/config).
func NewVault(key []byte, st *store.Store) (*Vault, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("invalid secret encryption key: %w", err)
	}
	return &Vault{aead: aead, store: st}, nil
}

func (v *Vault) encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return append(nonce, sealed...), nil
}

func (v *Vault) decrypt(ciphertext []byte) (string, error) {
	nonceSize := v.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plain, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Create encrypts value and stores the secret record.
func (v *Vault) Create(ctx context.Context, sec store.Secret, plaintextValue string) error {
	ciphertext, err := v.encrypt(plaintextValue)
	if err != nil {
		return err
	}
	sec.ValueCiphertext = ciphertext
	if sec.ID == "" {
		sec.ID = uuid.NewString()
	}
	return v.store.CreateSecret(ctx, sec)
}

// Rotate re-encrypts a secret with a new value.
func (v *Vault) Rotate(ctx context.Context, id, newPlaintextValue string) error {
	ciphertext, err := v.encrypt(newPlaintextValue)
	if err != nil {
		return err
	}
	return v.store.RotateSecret(ctx, id, ciphertext, time.Now())
}

// Reveal decrypts and returns the plaintext value. Callers MUST gate this
// behind the ADMIN role check at the HTTP façade (§9: "reveal requires
// elevated role").
func (v *Vault) Reveal(ctx context.Context, id string) (string, error) {
	sec, err := v.store.Secret(ctx, id)
	if err != nil {
		return "", err
	}
	return v.decrypt(sec.ValueCiphertext)
}

// List returns secret metadata only — never plaintext (§3).
func (v *Vault) List(ctx context.Context, page, pageSize int) ([]store.Secret, store.Page, error) {
	secs, total, err := v.store.ListSecrets(ctx, page, pageSize)
	if err != nil {
		return nil, store.Page{}, err
	}
	return secs, store.NewPage(page, pageSize, total), nil
}
