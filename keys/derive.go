package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// GenerateIssuerKeyFromSeed returns the record issuer key string for an Ed25519 seed.
//
// Format: "ed25519:" + base64(pubkey).
func GenerateIssuerKeyFromSeed(seed []byte) string {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return "ed25519:" + base64.StdEncoding.EncodeToString(pub)
}

// IssuerKeyFromPublicKey encodes an Ed25519 public key into the record
// issuer-key string, for callers that hold a public key but not its seed.
func IssuerKeyFromPublicKey(pub ed25519.PublicKey) (string, error) {
	if l := len(pub); l != ed25519.PublicKeySize {
		return "", fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
	}
	return "ed25519:" + base64.StdEncoding.EncodeToString(pub), nil
}

// DeriveRoleSeed deterministically derives a role-specific Ed25519 seed from a
// root seed via HKDF-SHA256, with the role name as the HKDF info parameter so
// distinct roles under the same root never collide.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	kdf := hkdf.New(sha256.New, rootSeed, []byte("trustreason-kms-lite-v1"), []byte("role:"+role))
	out := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, fmt.Errorf("derive role seed: %w", err)
	}
	return out, nil
}
