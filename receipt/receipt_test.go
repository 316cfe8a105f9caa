package receipt

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"xdao.co/trustreason/reasoner"
)

func sampleReport() *reasoner.Report {
	return &reasoner.Report{
		UDrvCount: 2,
		FODCount:  1,
		RDrvCount: 1,
		RootName:  "output1",
		Candidates: []reasoner.CandidateReport{
			{RDrv: "rout1", MinCardinality: 2, Outputs: []string{"Output output1$out of rout1 has cardinality 2"}},
		},
		VerifiedRoots: []string{"rout1"},
	}
}

func TestRenderUnsignedContainsInputsAndVerified(t *testing.T) {
	out := Render(sampleReport(), "policycid1", []string{"cidB", "cidA", "cidA"}, RenderOptions{})
	s := string(out)
	if !strings.HasPrefix(s, Preamble+"\n") {
		t.Fatalf("receipt does not start with preamble")
	}
	if !strings.HasSuffix(s, Postamble+"\n") {
		t.Fatalf("receipt does not end with postamble")
	}
	if !strings.Contains(s, "Trust-Policy-CID: policycid1\n") {
		t.Fatalf("missing Trust-Policy-CID line")
	}
	if !strings.Contains(s, "Verified-RDrv: rout1\n") {
		t.Fatalf("missing Verified-RDrv line")
	}
	idxA := strings.Index(s, "Evidence-CID: cidA")
	idxB := strings.Index(s, "Evidence-CID: cidB")
	if idxA < 0 || idxB < 0 || idxA > idxB {
		t.Fatalf("evidence CIDs not deduplicated and sorted: %s", s)
	}
	if strings.Count(s, "Evidence-CID: cidA") != 1 {
		t.Fatalf("duplicate evidence CID was not collapsed")
	}
}

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	out := Render(sampleReport(), "policycid1", []string{"cidA"}, RenderOptions{
		SignerKey:  "ed25519:test",
		PrivateKey: priv,
	})
	if strings.Contains(string(out), "Signature: 0") {
		t.Fatalf("signature placeholder was not replaced")
	}
	if err := Verify(out, pub); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestVerifyRejectsTamperedReceipt(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	out := Render(sampleReport(), "policycid1", []string{"cidA"}, RenderOptions{
		SignerKey:  "ed25519:test",
		PrivateKey: priv,
	})
	tampered := strings.Replace(string(out), "Verified-RDrv: rout1", "Verified-RDrv: rout2", 1)
	if err := Verify([]byte(tampered), pub); err == nil {
		t.Fatalf("Verify() accepted a tampered receipt")
	}
}
