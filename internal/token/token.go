// Package token implements the token service: signed JWT access
// tokens, opaque refresh tokens, and refresh rotation against the
// session store. Access tokens carry the identity claims downstream
// services authorize on; refresh tokens are random secrets whose
// SHA-256 hash is the only thing ever persisted.
package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agrifin/auth-service/internal/model"
)

// Verification failures. Expiry is reported distinctly so clients
// know to refresh; everything else (bad signature, wrong algorithm,
// malformed claims) collapses to ErrInvalidToken.
var (
	ErrExpiredToken = errors.New("access token expired")
	ErrInvalidToken = errors.New("access token invalid")
)

// Payload is the transient claim set embedded in access tokens and
// consumed by the RBAC middleware and downstream services.
type Payload struct {
	Sub       uint64
	Email     string
	Role      model.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Signer signs and verifies access tokens with an explicit
// algorithm. RS256 is preferred (verifiers only need the public
// key); HS256 matches deployments sharing one secret.
type Signer struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// NewHS256Signer builds a symmetric signer from a shared secret.
func NewHS256Signer(secret string) *Signer {
	key := []byte(secret)
	return &Signer{method: jwt.SigningMethodHS256, signKey: key, verifyKey: key}
}

// NewRS256Signer builds an asymmetric signer. The verification key
// is derived from the private key.
func NewRS256Signer(priv *rsa.PrivateKey) *Signer {
	return &Signer{method: jwt.SigningMethodRS256, signKey: priv, verifyKey: &priv.PublicKey}
}

// NewVerifier builds a verify-only RS256 signer from a public key,
// for services that check tokens but never issue them.
func NewVerifier(pub *rsa.PublicKey) *Signer {
	return &Signer{method: jwt.SigningMethodRS256, verifyKey: pub}
}

// NewSignerFromConfig selects RS256 when a private key file is
// configured and falls back to HS256 with the shared secret.
func NewSignerFromConfig(privateKeyFile, publicKeyFile, secret string) (*Signer, error) {
	if privateKeyFile == "" {
		if secret == "" {
			return nil, errors.New("no signing material configured")
		}
		return NewHS256Signer(secret), nil
	}
	pem, err := os.ReadFile(privateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	s := NewRS256Signer(priv)
	if publicKeyFile != "" {
		pubPEM, err := os.ReadFile(publicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		s.verifyKey = pub
	}
	return s, nil
}

// SignAccess builds and signs a JWT from the payload. Claims: sub,
// email, role, iat, exp.
func (s *Signer) SignAccess(p Payload) (string, error) {
	if s.signKey == nil {
		return "", errors.New("signer is verify-only")
	}
	claims := jwt.MapClaims{
		"sub":   p.Sub,
		"email": p.Email,
		"role":  string(p.Role),
		"iat":   p.IssuedAt.Unix(),
		"exp":   p.ExpiresAt.Unix(),
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
}

// VerifyAccess parses and validates a signed access token. Only the
// signer's own algorithm is accepted, closing the algorithm
// confusion hole. Verification never fails open: any doubt is an
// error.
func (s *Signer) VerifyAccess(raw string) (Payload, error) {
	tok, err := jwt.Parse(raw,
		func(t *jwt.Token) (interface{}, error) { return s.verifyKey, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Payload{}, ErrExpiredToken
		}
		return Payload{}, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return Payload{}, ErrInvalidToken
	}

	var p Payload
	sub, ok := claims["sub"].(float64)
	if !ok {
		return Payload{}, ErrInvalidToken
	}
	p.Sub = uint64(sub)
	p.Email, _ = claims["email"].(string)
	roleStr, _ := claims["role"].(string)
	role, ok := model.ParseRole(roleStr)
	if !ok {
		return Payload{}, ErrInvalidToken
	}
	p.Role = role
	if iat, ok := claims["iat"].(float64); ok {
		p.IssuedAt = time.Unix(int64(iat), 0).UTC()
	}
	if exp, ok := claims["exp"].(float64); ok {
		p.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return p, nil
}

// opaqueSecretBytes sizes the random part of opaque tokens
// (48 bytes -> 96 hex chars).
const opaqueSecretBytes = 48

// NewOpaqueToken returns an opaque token of the form
// "<record id>.<random hex>", used for both refresh tokens (id =
// session id) and password-reset tokens (id = reset id). The id
// prefix locates the record; the secret part is what the stored
// hash commits to.
func NewOpaqueToken(id string) (string, error) {
	secret, err := randomHex(opaqueSecretBytes)
	if err != nil {
		return "", err
	}
	return id + "." + secret, nil
}

// SplitOpaqueToken extracts the record id from a raw opaque token.
// Malformed tokens report false.
func SplitOpaqueToken(raw string) (string, bool) {
	id, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || id == "" || secret == "" {
		return "", false
	}
	return id, true
}

// HashOpaqueToken returns the SHA-256 hash of the raw token as a hex
// string. Only this digest is ever stored, so a leaked session store
// cannot be used to mint refreshes or redeem resets.
func HashOpaqueToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
