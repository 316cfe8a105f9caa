package record

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"xdao.co/trustreason/keys"
)

// IssuerKey returns the CRYPTO.Issuer-Key field.
func (r *Record) IssuerKey() string { return r.Sections["CRYPTO"].Get("Issuer-Key") }

// SignatureAlg returns the CRYPTO.Signature-Alg field.
func (r *Record) SignatureAlg() string { return r.Sections["CRYPTO"].Get("Signature-Alg") }

// HashAlg returns the CRYPTO.Hash-Alg field.
func (r *Record) HashAlg() string { return r.Sections["CRYPTO"].Get("Hash-Alg") }

// Signature returns the CRYPTO.Signature field.
func (r *Record) Signature() string { return r.Sections["CRYPTO"].Get("Signature") }

func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// Verify checks the record's CRYPTO section against its Signed bytes,
// supporting "ed25519:<base64>" and "dilithium3:<base64>" issuer-key
// encodings, mirroring the signature scheme accepted by keys.SignEd25519SHA256
// and keys.SignDilithium3.
func (r *Record) Verify() error {
	alg := r.SignatureAlg()
	if alg == "" {
		return newError(KindCrypto, "RECORD-CRYPTO-002", "record: missing Signature-Alg")
	}
	hashAlg := r.HashAlg()
	if hashAlg == "" {
		return newError(KindCrypto, "RECORD-CRYPTO-003", "record: missing Hash-Alg")
	}
	issuer := r.IssuerKey()
	if issuer == "" {
		return newError(KindCrypto, "RECORD-CRYPTO-004", "record: missing Issuer-Key")
	}
	issuerAlg, enc, ok := strings.Cut(issuer, ":")
	if !ok {
		return newError(KindCrypto, "RECORD-CRYPTO-005", fmt.Sprintf("record: invalid Issuer-Key encoding %q", issuer))
	}
	if issuerAlg != alg {
		return newError(KindCrypto, "RECORD-CRYPTO-006", fmt.Sprintf("record: Issuer-Key alg %q does not match Signature-Alg %q", issuerAlg, alg))
	}
	pub, err := decodeBase64(enc)
	if err != nil {
		return newError(KindCrypto, "RECORD-CRYPTO-007", "record: invalid issuer key base64")
	}
	sigB64 := r.Signature()
	if sigB64 == "" {
		return newError(KindCrypto, "RECORD-CRYPTO-008", "record: missing Signature")
	}
	sig, err := decodeBase64(sigB64)
	if err != nil {
		return newError(KindCrypto, "RECORD-CRYPTO-009", "record: invalid signature base64")
	}
	digest, err := keys.DigestFor(hashAlg, r.Signed)
	if err != nil {
		return newError(KindCrypto, "RECORD-CRYPTO-001", fmt.Sprintf("record: unsupported Hash-Alg %q", hashAlg))
	}

	switch alg {
	case "ed25519":
		if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
			return newError(KindCrypto, "RECORD-CRYPTO-010", "record: invalid ed25519 key or signature length")
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
			return newError(KindCrypto, "RECORD-CRYPTO-011", "record: signature invalid")
		}
		return nil
	case "dilithium3":
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return newError(KindCrypto, "RECORD-CRYPTO-012", "record: invalid dilithium3 public key")
		}
		if len(sig) != mode3.SignatureSize || !mode3.Verify(&pk, digest, sig) {
			return newError(KindCrypto, "RECORD-CRYPTO-011", "record: signature invalid")
		}
		return nil
	default:
		return newError(KindCrypto, "RECORD-CRYPTO-013", fmt.Sprintf("record: unsupported Signature-Alg %q", alg))
	}
}

// SignEd25519 renders doc, signs its BODY-inclusive scope with priv under
// sha256, and returns the finished, parsed Record.
func SignEd25519(doc Document, issuerKey string, priv ed25519.PrivateKey) (*Record, error) {
	if doc.Crypto == nil {
		doc.Crypto = map[string][]string{}
	}
	doc.Crypto["Issuer-Key"] = []string{issuerKey}
	doc.Crypto["Signature-Alg"] = []string{"ed25519"}
	doc.Crypto["Hash-Alg"] = []string{"sha256"}

	// The signature scope (BEGIN through the blank line after BODY) never
	// depends on the CRYPTO section's own contents, so it can be computed
	// before Signature is known.
	unsigned, err := Render(doc)
	if err != nil {
		return nil, err
	}
	marker := []byte("\nCRYPTO\n")
	idx := strings.Index(string(unsigned), string(marker))
	if idx < 0 {
		return nil, newError(KindRender, "RECORD-REN-008", "record: cannot determine signature scope")
	}
	signed := unsigned[:idx+1]

	doc.Crypto["Signature"] = []string{keys.SignEd25519SHA256(signed, priv)}
	final, err := Render(doc)
	if err != nil {
		return nil, err
	}
	return Parse(final)
}
