package domain

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	"gorm.io/datatypes"
)

const envelopeVersion = 1

type encryptedPayload struct {
	Version    int    `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Cipher seals provider configs with AES-256-GCM under a key derived from
// the configured secret.
type Cipher struct {
	key []byte
}

func NewCipher(secret string) *Cipher {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &Cipher{}
	}
	sum := sha256.Sum256([]byte(secret))
	return &Cipher{key: sum[:]}
}

func (c *Cipher) Encrypt(config map[string]any) (datatypes.JSON, error) {
	if c == nil || len(c.key) == 0 {
		return nil, ErrEncryptionKeyMissing
	}

	payload, err := json.Marshal(config)
	if err != nil {
		return nil, ErrInvalidConfig
	}

	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, payload, nil)
	out, err := json.Marshal(encryptedPayload{
		Version:    envelopeVersion,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}

func (c *Cipher) Decrypt(encrypted datatypes.JSON) (map[string]any, error) {
	if c == nil || len(c.key) == 0 {
		return nil, ErrEncryptionKeyMissing
	}
	if len(encrypted) == 0 {
		return nil, ErrInvalidConfig
	}

	var payload encryptedPayload
	if err := json.Unmarshal(encrypted, &payload); err != nil {
		return nil, ErrInvalidConfig
	}
	if payload.Version != envelopeVersion {
		return nil, ErrInvalidConfig
	}
	nonce, err := base64.RawStdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return nil, ErrInvalidConfig
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return nil, ErrInvalidConfig
	}

	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidConfig
	}

	var out map[string]any
	if err := json.Unmarshal(plain, &out); err != nil || len(out) == 0 {
		return nil, ErrInvalidConfig
	}
	return out, nil
}

func (c *Cipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
