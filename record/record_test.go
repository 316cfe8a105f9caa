package record

import "testing"

func buildFodDoc() Document {
	return Document{
		Type:    TypeFod,
		Subject: map[string][]string{"Name": {"fod1"}},
		Body: map[string][]string{
			"UDrv":         {"fod1"},
			"Content-Hash": {"hash1"},
		},
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	data, err := Render(buildFodDoc())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	rec, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Type != TypeFod {
		t.Fatalf("Type = %v, want %v", rec.Type, TypeFod)
	}
	if got := rec.Sections["BODY"].Get("UDrv"); got != "fod1" {
		t.Fatalf("BODY.UDrv = %q, want fod1", got)
	}
}

func TestParseRejectsNonCanonicalKeyOrder(t *testing.T) {
	// UDrv before Content-Hash; canonical order is lexicographic by key.
	tampered := []byte(
		"-----BEGIN TRUSTREASON RECORD-----\n" +
			"META\n" +
			"Type: FOD\n" +
			"\n" +
			"SUBJECT\n" +
			"Name: fod1\n" +
			"\n" +
			"BODY\n" +
			"UDrv: fod1\n" +
			"Content-Hash: hash1\n" +
			"\n" +
			"CRYPTO\n" +
			"-----END TRUSTREASON RECORD-----")
	if _, err := Parse(tampered); err == nil {
		t.Fatalf("Parse() accepted out-of-order keys")
	}
}

func TestRenderRejectsMissingType(t *testing.T) {
	doc := buildFodDoc()
	doc.Type = ""
	if _, err := Render(doc); err == nil {
		t.Fatalf("Render() accepted a Document with no Type")
	}
}

func TestListFieldCollectsRepeatedKeysSorted(t *testing.T) {
	doc := Document{
		Type: TypeUnresolved,
		Body: map[string][]string{
			"UDrv":       {"dep1"},
			"Depends-On": {"z$out", "a$out"},
			"Output":     {"dep1$out"},
		},
	}
	data, err := Render(doc)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	rec, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got := rec.Sections["BODY"].GetAll("Depends-On")
	want := []string{"a$out", "z$out"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("GetAll(Depends-On) = %v, want %v", got, want)
	}
}

func TestParseRejectsTrailingNewline(t *testing.T) {
	data, err := Render(buildFodDoc())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if _, err := Parse(append(data, '\n')); err == nil {
		t.Fatalf("Parse() accepted a trailing newline")
	}
}

func TestSignAndVerifyEd25519(t *testing.T) {
	pub, priv, err := generateTestEd25519()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	issuerKey, err := issuerKeyFor(pub)
	if err != nil {
		t.Fatalf("issuerKeyFor: %v", err)
	}

	rec, err := SignEd25519(buildFodDoc(), issuerKey, priv)
	if err != nil {
		t.Fatalf("SignEd25519() error = %v", err)
	}
	if err := rec.Verify(); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	tampered := append([]byte(nil), rec.Raw...)
	reparsed, err := Parse(tampered)
	if err != nil {
		t.Fatalf("Parse(signed) error = %v", err)
	}
	if err := reparsed.Verify(); err != nil {
		t.Fatalf("Verify() on reparsed record error = %v", err)
	}
}
