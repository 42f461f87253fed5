package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

const keyInfo = "personium-engine service subject token"

// Claims are the contents of a self-issued token.
type Claims struct {
	ID        string `json:"jti"`
	Issuer    string `json:"iss"`
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Signer issues tokens for service subjects. The signing key of each
// issuing cell is derived from the unit secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer over secret.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("token secret key must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a token for subject, issued by the cell at issuer.
func (s *Signer) Issue(issuer, subject string) (string, error) {
	now := s.now()
	claims := Claims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}
	payload, err := sonic.Marshal(claims)
	if err != nil {
		return "", err
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	sig, err := s.sign(issuer, body)
	if err != nil {
		return "", err
	}
	return body + "." + sig, nil
}

// Verify checks the signature and expiry of token.
func (s *Signer) Verify(token string) (*Claims, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return nil, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := sonic.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	want, err := s.sign(claims.Issuer, body)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return nil, ErrInvalidToken
	}
	if s.now().Unix() >= claims.ExpiresAt {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}

func (s *Signer) sign(issuer, body string) (string, error) {
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.secret, []byte(issuer), []byte(keyInfo)), key); err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
