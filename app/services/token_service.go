// Package services provides external service integrations and technical concerns like provider clients and tokens
package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/golang-jwt/jwt/v5"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// TokenService validates operator access tokens. Tokens are normally minted
// by the identity provider; GenerateAccessToken exists for tooling and tests.
type TokenService interface {
	GenerateAccessToken(operatorID uint) (string, error)
	ValidateToken(token string) (*OperatorClaims, error)
}

// OperatorClaims represents the claims carried by an operator JWT
type OperatorClaims struct {
	OperatorID uint   `json:"operator_id"`
	TokenType  string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenServiceImpl implements TokenService
type TokenServiceImpl struct {
	accessTokenTTL time.Duration
	signingMethod  jwt.SigningMethod
	privateKey     *rsa.PrivateKey
	publicKey      *rsa.PublicKey
	secretKey      []byte
	useRSAKeys     bool
	issuer         string
	audience       string
}

// NewTokenService creates a new token service
func NewTokenService(accessTokenTTL time.Duration, issuer, audience string, useRSAKeys bool, privateKeyPEM, publicKeyPEM, secretKey string) (TokenService, error) {
	var privateKey *rsa.PrivateKey
	var publicKey *rsa.PublicKey
	var secretKeyBytes []byte
	var signingMethod jwt.SigningMethod

	if useRSAKeys {
		var err error
		privateKey, publicKey, err = parseRSAKeys(privateKeyPEM, publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA keys: %w", err)
		}
		signingMethod = jwt.SigningMethodRS256
	} else {
		if secretKey == "" {
			return nil, fmt.Errorf("secret key is required when not using RSA keys")
		}
		secretKeyBytes = []byte(secretKey)
		signingMethod = jwt.SigningMethodHS256
	}

	return &TokenServiceImpl{
		accessTokenTTL: accessTokenTTL,
		signingMethod:  signingMethod,
		privateKey:     privateKey,
		publicKey:      publicKey,
		secretKey:      secretKeyBytes,
		useRSAKeys:     useRSAKeys,
		issuer:         issuer,
		audience:       audience,
	}, nil
}

// parseRSAKeys parses RSA private and public keys from PEM format.
// A verify-only deployment may omit the private key.
func parseRSAKeys(privateKeyPEM, publicKeyPEM string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if publicKeyPEM == "" {
		return nil, nil, fmt.Errorf("public key is required")
	}

	var privateKey *rsa.PrivateKey
	if privateKeyPEM != "" {
		privateKeyBlock, _ := pem.Decode([]byte(privateKeyPEM))
		if privateKeyBlock == nil {
			return nil, nil, fmt.Errorf("failed to decode private key")
		}
		var err error
		privateKey, err = x509.ParsePKCS1PrivateKey(privateKeyBlock.Bytes)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse private key: %w", err)
		}
	}

	publicKeyBlock, _ := pem.Decode([]byte(publicKeyPEM))
	if publicKeyBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode public key")
	}

	publicKey, err := x509.ParsePKIXPublicKey(publicKeyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPublicKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("public key is not RSA")
	}

	return privateKey, rsaPublicKey, nil
}

// GenerateAccessToken signs an access token for an operator
func (s *TokenServiceImpl) GenerateAccessToken(operatorID uint) (string, error) {
	if s.useRSAKeys && s.privateKey == nil {
		return "", fmt.Errorf("token service is verify-only")
	}

	tokenID, err := generateTokenID()
	if err != nil {
		return "", err
	}

	now := utils.UTCNow()
	claims := OperatorClaims{
		OperatorID: operatorID,
		TokenType:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	token := jwt.NewWithClaims(s.signingMethod, claims)
	if s.useRSAKeys {
		return token.SignedString(s.privateKey)
	}
	return token.SignedString(s.secretKey)
}

// ValidateToken validates a JWT token and returns operator claims
func (s *TokenServiceImpl) ValidateToken(token string) (*OperatorClaims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	claims := &OperatorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if s.useRSAKeys {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.publicKey, nil
		}
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !parsed.Valid || claims.OperatorID == 0 || claims.TokenType != "access" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// generateTokenID generates a unique token ID
func generateTokenID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", bytes), nil
}
