package facts

import (
	"testing"

	"xdao.co/trustreason/intern"
)

func TestAddFodSynthesizesDefaultOutput(t *testing.T) {
	in := intern.New()
	s := NewStore(in)
	s.AddFod("fod1", "hash1")

	udrv := in.InternUDrv("fod1")
	out := in.InternUDrvOutput("fod1$out")
	chash := in.InternCHash("hash1")

	if _, ok := s.FODs[UDrvCHash{UDrv: udrv, CHash: chash}]; !ok {
		t.Fatalf("fods relation missing (fod1, hash1)")
	}
	if _, ok := s.HasOutput[OutputEdge{UDrv: udrv, Output: out}]; !ok {
		t.Fatalf("udrv_has_output missing synthesized fod1$out")
	}
}

func TestAddFodIsIdempotent(t *testing.T) {
	in := intern.New()
	s := NewStore(in)
	s.AddFod("fod1", "hash1")
	s.AddFod("fod1", "hash1")
	if len(s.FODs) != 1 {
		t.Fatalf("len(FODs) = %d, want 1 after adding the same fact twice", len(s.FODs))
	}
}

func TestAddUnresolvedWiresDependsOnAndHasOutput(t *testing.T) {
	in := intern.New()
	s := NewStore(in)
	s.AddUnresolved("dep1", []string{"fod1$out"}, []string{"dep1$out"})

	dep1 := in.InternUDrv("dep1")
	depOut := in.InternUDrvOutput("fod1$out")
	ownOut := in.InternUDrvOutput("dep1$out")

	if _, ok := s.DependsOn[OutputEdge{UDrv: dep1, Output: depOut}]; !ok {
		t.Fatalf("udrv_depends_on missing dep1 -> fod1$out")
	}
	if _, ok := s.HasOutput[OutputEdge{UDrv: dep1, Output: ownOut}]; !ok {
		t.Fatalf("udrv_has_output missing dep1 -> dep1$out")
	}
}

func TestAddResolvedPopulatesResolvesAndResolvesWith(t *testing.T) {
	in := intern.New()
	s := NewStore(in)
	s.AddResolved("dep1", "rdep1", map[string]string{"dep1$out": "bdep1"})

	rdep1 := in.InternRDrv("rdep1")
	dep1 := in.InternUDrv("dep1")
	out := in.InternUDrvOutput("dep1$out")
	hash := in.InternCHash("bdep1")

	if _, ok := s.Resolves[Resolves{RDrv: rdep1, UDrv: dep1}]; !ok {
		t.Fatalf("rdrv_resolves missing rdep1 -> dep1")
	}
	if _, ok := s.ResolvesWith[ResolvesWith{RDrv: rdep1, Output: out, CHash: hash}]; !ok {
		t.Fatalf("rdrv_resolves_with missing entry")
	}
}

func TestAddClaimCoalescesDuplicateTuples(t *testing.T) {
	in := intern.New()
	s := NewStore(in)
	s.AddClaim("rout1", map[string]string{"output1$out": "bout1"}, "key1")
	s.AddClaim("rout1", map[string]string{"output1$out": "bout1"}, "key1")
	if len(s.Claims) != 1 {
		t.Fatalf("len(Claims) = %d, want 1 (duplicate claim must coalesce)", len(s.Claims))
	}
}

func TestAddClaimDistinguishesSigners(t *testing.T) {
	in := intern.New()
	s := NewStore(in)
	s.AddClaim("rout1", map[string]string{"output1$out": "bout1"}, "key1")
	s.AddClaim("rout1", map[string]string{"output1$out": "bout1"}, "key2")
	if len(s.Claims) != 2 {
		t.Fatalf("len(Claims) = %d, want 2 (distinct signers are distinct facts)", len(s.Claims))
	}
}
