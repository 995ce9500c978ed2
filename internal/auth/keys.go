package auth

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
)

const (
	minRSABits         = 2048
	minRefreshSecretSz = 32
)

// KeyMaterial holds the RSA pair used for access tokens and the shared
// secret used for refresh tokens. It is built once at startup and is safe
// for concurrent reads; nothing mutates it until Destroy.
type KeyMaterial struct {
	privateKey    *rsa.PrivateKey
	publicKey     *rsa.PublicKey
	keyID         string
	refreshSecret []byte
}

// NewKeyMaterial validates and wraps already-parsed key material.
func NewKeyMaterial(privateKey *rsa.PrivateKey, refreshSecret []byte) (*KeyMaterial, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("%w: private key missing", domain.ErrKeyMaterialUnavailable)
	}
	if err := privateKey.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyMaterialUnavailable, err)
	}
	if privateKey.N.BitLen() < minRSABits {
		return nil, fmt.Errorf("%w: rsa key must be at least %d bits", domain.ErrKeyMaterialUnavailable, minRSABits)
	}
	if len(refreshSecret) < minRefreshSecretSz {
		return nil, fmt.Errorf("%w: refresh token secret must be at least %d bytes", domain.ErrKeyMaterialUnavailable, minRefreshSecretSz)
	}

	secret := make([]byte, len(refreshSecret))
	copy(secret, refreshSecret)

	pub := &privateKey.PublicKey
	return &KeyMaterial{
		privateKey:    privateKey,
		publicKey:     pub,
		keyID:         thumbprint(pub),
		refreshSecret: secret,
	}, nil
}

// LoadKeyMaterial reads PEM keys and the refresh secret described by cfg.
// Every failure wraps domain.ErrKeyMaterialUnavailable.
func LoadKeyMaterial(cfg config.AuthConfig) (*KeyMaterial, error) {
	privatePEM := []byte(strings.TrimSpace(cfg.PrivateKeyPEM))
	if len(privatePEM) == 0 {
		if cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("%w: no private key configured", domain.ErrKeyMaterialUnavailable)
		}
		raw, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read private key: %v", domain.ErrKeyMaterialUnavailable, err)
		}
		privatePEM = raw
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", domain.ErrKeyMaterialUnavailable, err)
	}

	km, err := NewKeyMaterial(privateKey, []byte(cfg.RefreshTokenSecret))
	if err != nil {
		return nil, err
	}

	if cfg.PublicKeyPath != "" {
		raw, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read public key: %v", domain.ErrKeyMaterialUnavailable, err)
		}
		publicKey, err := jwt.ParseRSAPublicKeyFromPEM(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parse public key: %v", domain.ErrKeyMaterialUnavailable, err)
		}
		if !publicKey.Equal(km.publicKey) {
			return nil, fmt.Errorf("%w: public key does not match private key", domain.ErrKeyMaterialUnavailable)
		}
	}

	return km, nil
}

// PublicKey returns the access-token verification key.
func (k *KeyMaterial) PublicKey() *rsa.PublicKey {
	return k.publicKey
}

// KeyID returns the RFC 7638 thumbprint used as the kid header.
func (k *KeyMaterial) KeyID() string {
	return k.keyID
}

// Destroy zeroes the secret material, including the precomputed CRT values. The KeyMaterial is unusable afterwards.
func (k *KeyMaterial) Destroy() {
	if k == nil {
		return
	}
	for i := range k.refreshSecret {
		k.refreshSecret[i] = 0
	}
	k.refreshSecret = nil
	if k.privateKey != nil {
		k.privateKey.D.SetInt64(0)
		for _, p := range k.privateKey.Primes {
			p.SetInt64(0)
		}
		pre := &k.privateKey.Precomputed
		for _, v := range []*big.Int{pre.Dp, pre.Dq, pre.Qinv} {
			if v != nil {
				v.SetInt64(0)
			}
		}
		for _, crt := range pre.CRTValues {
			for _, v := range []*big.Int{crt.Exp, crt.Coeff, crt.R} {
				if v != nil {
					v.SetInt64(0)
				}
			}
		}
		k.privateKey = nil
	}
}

func (k *KeyMaterial) signingKey() (*rsa.PrivateKey, error) {
	if k == nil || k.privateKey == nil {
		return nil, errors.New("signing key destroyed")
	}
	return k.privateKey, nil
}

func (k *KeyMaterial) secret() ([]byte, error) {
	if k == nil || len(k.refreshSecret) == 0 {
		return nil, errors.New("refresh secret destroyed")
	}
	return k.refreshSecret, nil
}

func thumbprint(pub *rsa.PublicKey) string {
	// Members in lexicographic order, no whitespace.
	canonical, _ := json.Marshal(struct {
		E   string `json:"e"`
		Kty string `json:"kty"`
		N   string `json:"n"`
	}{
		E:   encodeExponent(pub.E),
		Kty: "RSA",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
	})
	sum := sha256.Sum256(canonical)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func encodeExponent(e int) string {
	return base64.RawURLEncoding.EncodeToString(big.NewInt(int64(e)).Bytes())
}
