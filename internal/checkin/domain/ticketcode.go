package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// TicketSigner issues and verifies "registration_id.signature" ticket codes.
type TicketSigner struct {
	key []byte
}

func NewTicketSigner(secret string) *TicketSigner {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &TicketSigner{key: []byte(secret)}
}

func (s *TicketSigner) Sign(registrationID uuid.UUID) (string, error) {
	if s == nil {
		return "", ErrSigningKeyMissing
	}
	id := registrationID.String()
	return id + "." + s.signature(id), nil
}

func (s *TicketSigner) Verify(code string) (uuid.UUID, error) {
	if s == nil {
		return uuid.Nil, ErrSigningKeyMissing
	}
	id, sig, found := strings.Cut(strings.TrimSpace(code), ".")
	if !found || id == "" || sig == "" {
		return uuid.Nil, ErrInvalidTicketCode
	}
	registrationID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, ErrInvalidTicketCode
	}
	if !hmac.Equal([]byte(sig), []byte(s.signature(registrationID.String()))) {
		return uuid.Nil, ErrInvalidTicketCode
	}
	return registrationID, nil
}

func (s *TicketSigner) signature(id string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
