package auth

import "encoding/base64"

// JWK is the public form of an RSA signing key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSet is served at /.well-known/jwks.json.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// JWKS publishes the access-token verification key so other services can
// verify tokens without holding any secret.
func (k *KeyMaterial) JWKS() JWKSet {
	return JWKSet{Keys: []JWK{{
		Kty: "RSA",
		Use: "sig",
		Alg: accessSigningMethod.Alg(),
		Kid: k.keyID,
		N:   base64.RawURLEncoding.EncodeToString(k.publicKey.N.Bytes()),
		E:   encodeExponent(k.publicKey.E),
	}}}
}
