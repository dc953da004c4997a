package jwtinfra

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medconnect-auth/internal/config"
)

// Issuer is stamped into every access token and required on verification.
const Issuer = "medconnect-auth"

// Claims is the access token payload.
type Claims struct {
	AccountID   string `json:"account_id"`
	AccountType string `json:"account_type,omitempty"`
	SessionID   string `json:"session_id"`
	jwt.RegisteredClaims
}

// Provider issues and checks RS256 access tokens.
type Provider struct {
	signKey   *rsa.PrivateKey
	verifyKey *rsa.PublicKey
	ttl       time.Duration
	parser    *jwt.Parser
}

// NewProvider loads the key pair from JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH.
func NewProvider(cfg *config.Config) (*Provider, error) {
	priv, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	pub, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewProviderFromPEM(priv, pub, cfg.JWTExpiry)
}

func NewProviderFromPEM(privPEM, pubPEM []byte, ttl time.Duration) (*Provider, error) {
	signKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	verifyKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &Provider{
		signKey:   signKey,
		verifyKey: verifyKey,
		ttl:       ttl,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(Issuer),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Sign issues an access token for sessionID.
func (p *Provider) Sign(accountID, accountType, sessionID string) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		AccountID:   accountID,
		AccountType: accountType,
		SessionID:   sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}).SignedString(p.signKey)
}

// Verify parses tokenStr and returns its claims when the signature, issuer and
// expiry are all valid.
func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	var claims Claims
	if _, err := p.parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (interface{}, error) {
		return p.verifyKey, nil
	}); err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	return &claims, nil
}
