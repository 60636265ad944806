package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidKey is returned when PEM, secret or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// minHMACSecretLen is the shortest accepted HS256 secret in bytes.
const minHMACSecretLen = 32

// SigningKey is the signing and verification material for one principal type.
type SigningKey struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// Alg returns the JWT algorithm name of the key.
func (k SigningKey) Alg() string {
	if k.method == nil {
		return ""
	}
	return k.method.Alg()
}

// HMACKey returns an HS256 key for the shared secret. Secrets shorter than 32 bytes are rejected.
func HMACKey(secret []byte) (SigningKey, error) {
	if len(secret) < minHMACSecretLen {
		return SigningKey{}, ErrInvalidKey
	}
	s := append([]byte(nil), secret...)
	return SigningKey{method: jwt.SigningMethodHS256, signKey: s, verifyKey: s}, nil
}

// AsymmetricKey returns an RS256 or ES256/ES384 key from a parsed key pair.
func AsymmetricKey(priv crypto.Signer, pub crypto.PublicKey) (SigningKey, error) {
	if priv == nil || pub == nil {
		return SigningKey{}, ErrInvalidKey
	}
	var method jwt.SigningMethod
	switch KeyAlg(pub) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	case "ES384":
		method = jwt.SigningMethodES384
	default:
		return SigningKey{}, ErrInvalidKey
	}
	if KeyAlg(priv.Public()) != method.Alg() {
		return SigningKey{}, ErrInvalidKey
	}
	return SigningKey{method: method, signKey: priv, verifyKey: pub}, nil
}

// LoadPEMKey parses an inline PEM or file path pair into a SigningKey.
func LoadPEMKey(privateKey, publicKey string) (SigningKey, error) {
	priv, err := ParsePrivateKey(privateKey)
	if err != nil {
		return SigningKey{}, err
	}
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return SigningKey{}, err
	}
	return AsymmetricKey(priv, pub)
}

// LoadPEM returns s itself when it is inline PEM, with escaped "\n" sequences from env files
// restored, and otherwise reads the file s names.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	b, err := os.ReadFile(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return b, nil
}

// decodePEM returns the first PEM block of an inline PEM or file path.
func decodePEM(s string) (*pem.Block, error) {
	raw, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKey)
	}
	return block, nil
}

// ParsePrivateKey accepts PKCS#1 RSA, SEC 1 EC and PKCS#8 private keys.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	block, err := decodePEM(s)
	if err != nil {
		return nil, err
	}
	var key any
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: unexpected block %q", ErrInvalidKey, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: %T cannot sign", ErrInvalidKey, key)
	}
	return signer, nil
}

// ParsePublicKey accepts PKCS#1 RSA and PKIX public keys.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	block, err := decodePEM(s)
	if err != nil {
		return nil, err
	}
	var pub crypto.PublicKey
	switch block.Type {
	case "RSA PUBLIC KEY":
		pub, err = x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		pub, err = x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: unexpected block %q", ErrInvalidKey, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}

// KeyAlg maps a public key to its JWT algorithm, or "" when the key type or curve is unsupported.
func KeyAlg(pub crypto.PublicKey) string {
	if _, ok := pub.(*rsa.PublicKey); ok {
		return "RS256"
	}
	if k, ok := pub.(*ecdsa.PublicKey); ok {
		switch k.Curve {
		case elliptic.P256():
			return "ES256"
		case elliptic.P384():
			return "ES384"
		}
	}
	return ""
}
