package keys

import (
	"testing"

	"xdao.co/trustreason/trust"
)

func TestCheckKeyNameRejectsReservedDefault(t *testing.T) {
	if err := CheckKeyName(trust.DefaultName); err == nil {
		t.Fatalf("CheckKeyName(%q) = nil, want error", trust.DefaultName)
	}
}

func TestCheckKeyNameAcceptsOrdinaryName(t *testing.T) {
	if err := CheckKeyName("key1"); err != nil {
		t.Fatalf("CheckKeyName(%q) error = %v", "key1", err)
	}
}

func TestCheckKeyNameRejectsEmpty(t *testing.T) {
	if err := CheckKeyName(""); err == nil {
		t.Fatalf("CheckKeyName(\"\") = nil, want error")
	}
}
