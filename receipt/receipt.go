// Package receipt implements the Canonical Verification Receipt format: a
// text document binding one ComputeResult run to the evidence CIDs it
// consumed, so a verified root can be cited and checked later without
// re-running the reasoner.
package receipt

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"xdao.co/trustreason/reasoner"
)

const (
	Preamble  = "-----BEGIN TRUSTREASON RECEIPT-----"
	Postamble = "-----END TRUSTREASON RECEIPT-----"
)

// RenderOptions configures optional metadata and signing for Render.
type RenderOptions struct {
	ReasonerID string
	ComputedAt time.Time // informational only; zero means omit

	// SignerKey and PrivateKey: if both are set, the receipt includes a
	// populated CRYPTO section with Signature computed over the receipt
	// bytes excluding the Signature line.
	SignerKey  string
	PrivateKey ed25519.PrivateKey
}

// Render produces a canonical receipt binding report to trustPolicyCID and
// evidenceCIDs, the inputs ComputeResult consumed to produce it.
func Render(report *reasoner.Report, trustPolicyCID string, evidenceCIDs []string, opts RenderOptions) []byte {
	reasonerID := opts.ReasonerID
	if reasonerID == "" {
		reasonerID = "trustreason-reference"
	}

	var sb strings.Builder
	sb.WriteString(Preamble)
	sb.WriteString("\n")

	sb.WriteString("META\n")
	metaLines := []string{
		"Reasoner-ID: " + reasonerID,
		"Spec: trustreason-receipt-1",
		"Version: 1",
	}
	if !opts.ComputedAt.IsZero() {
		metaLines = append(metaLines, "Computed-At: "+opts.ComputedAt.UTC().Format(time.RFC3339))
	}
	sort.Strings(metaLines)
	for _, l := range metaLines {
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("INPUTS\n")
	if trustPolicyCID != "" {
		sb.WriteString("Trust-Policy-CID: ")
		sb.WriteString(trustPolicyCID)
		sb.WriteString("\n")
	}
	evidence := uniqueSorted(evidenceCIDs)
	for _, c := range evidence {
		sb.WriteString("Evidence-CID: ")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("RESULT\n")
	resultLines := []string{
		fmt.Sprintf("Root: %s", report.RootName),
		fmt.Sprintf("UDrv-Count: %d", report.UDrvCount),
		fmt.Sprintf("FOD-Count: %d", report.FODCount),
		fmt.Sprintf("RDrv-Count: %d", report.RDrvCount),
	}
	sort.Strings(resultLines)
	for _, l := range resultLines {
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("CANDIDATES\n")
	candidates := append([]reasoner.CandidateReport(nil), report.Candidates...)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].RDrv < candidates[j].RDrv })
	for _, c := range candidates {
		sb.WriteString(fmt.Sprintf("Candidate-RDrv: RDrv=%s; Min-Cardinality=%d\n", c.RDrv, c.MinCardinality))
	}
	sb.WriteString("\n")

	sb.WriteString("VERIFIED\n")
	verified := uniqueSorted(report.VerifiedRoots)
	for _, v := range verified {
		sb.WriteString("Verified-RDrv: ")
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("DIAGNOSTICS\n")
	diagnostics := append([]string(nil), report.Diagnostics...)
	sort.Strings(diagnostics)
	for _, d := range diagnostics {
		sb.WriteString("Diagnostic: ")
		sb.WriteString(d)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("CRYPTO\n")
	cryptoLines := []string{}
	if opts.SignerKey != "" {
		cryptoLines = append(cryptoLines,
			"Hash-Alg: sha256",
			"Signature: 0",
			"Signature-Alg: ed25519",
			"Signer-Key: "+opts.SignerKey,
		)
	}
	sort.Strings(cryptoLines)
	for _, l := range cryptoLines {
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString(Postamble)
	sb.WriteString("\n")
	out := []byte(sb.String())

	if len(opts.PrivateKey) > 0 && opts.SignerKey != "" {
		sig, err := sign(out, opts.PrivateKey)
		if err != nil {
			panic("receipt: signing requested but failed: " + err.Error())
		}
		out = []byte(strings.Replace(string(out), "Signature: 0", "Signature: "+sig, 1))
	}

	return out
}

// Verify checks the Signature line of a receipt produced with a non-empty
// SignerKey, given the signer's Ed25519 public key.
func Verify(receiptBytes []byte, pub ed25519.PublicKey) error {
	scope, sig, err := signatureScopeAndValue(receiptBytes)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(scope)
	if !ed25519.Verify(pub, digest[:], sig) {
		return errors.New("receipt: signature verification failed")
	}
	return nil
}

func uniqueSorted(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s == "" {
			continue
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func sign(receiptBytes []byte, privateKey ed25519.PrivateKey) (string, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return "", errors.New("invalid ed25519 private key length")
	}
	scope, err := signatureScope(receiptBytes)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(scope)
	s := ed25519.Sign(privateKey, digest[:])
	return base64.StdEncoding.EncodeToString(s), nil
}

func signatureScope(receiptBytes []byte) ([]byte, error) {
	lines := strings.Split(string(receiptBytes), "\n")
	var out []string
	removed := false
	for _, l := range lines {
		if strings.HasPrefix(l, "Signature: ") {
			if removed {
				return nil, errors.New("multiple Signature lines")
			}
			removed = true
			continue
		}
		out = append(out, l)
	}
	if !removed {
		return nil, errors.New("missing Signature line")
	}
	return []byte(strings.Join(out, "\n")), nil
}

func signatureScopeAndValue(receiptBytes []byte) ([]byte, []byte, error) {
	lines := strings.Split(string(receiptBytes), "\n")
	var scopeLines []string
	var sigB64 string
	found := false
	for _, l := range lines {
		if strings.HasPrefix(l, "Signature: ") {
			if found {
				return nil, nil, errors.New("multiple Signature lines")
			}
			found = true
			sigB64 = strings.TrimPrefix(l, "Signature: ")
			continue
		}
		scopeLines = append(scopeLines, l)
	}
	if !found {
		return nil, nil, errors.New("missing Signature line")
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, nil, fmt.Errorf("decode signature: %w", err)
	}
	return []byte(strings.Join(scopeLines, "\n")), sig, nil
}
