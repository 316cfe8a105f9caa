package record

import (
	"crypto/ed25519"
	"crypto/rand"

	"xdao.co/trustreason/keys"
)

func generateTestEd25519() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

func issuerKeyFor(pub ed25519.PublicKey) (string, error) {
	return keys.IssuerKeyFromPublicKey(pub)
}
