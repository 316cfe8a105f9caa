// Package facts implements the Fact Store: a collection of typed relations
// that accumulate facts added through the public ingestion API prior to
// evaluation. All relations are append-only sets during ingestion; the Store
// performs no validation beyond the set semantics of its relations (two
// identical tuples coalesce into one).
package facts

import "xdao.co/trustreason/intern"

// UDrvCHash is a tuple of the fods(UDrv, CHash) relation.
type UDrvCHash struct {
	UDrv  intern.UDrv
	CHash intern.CHash
}

// OutputEdge is a tuple shared by udrv_has_output and udrv_depends_on.
type OutputEdge struct {
	UDrv   intern.UDrv
	Output intern.UDrvOutput
}

// Resolves is a tuple of the rdrv_resolves(RDrv, UDrv) relation.
type Resolves struct {
	RDrv intern.RDrv
	UDrv intern.UDrv
}

// ResolvesWith is a tuple of rdrv_resolves_with(RDrv, UDrvOutput, CHash).
type ResolvesWith struct {
	RDrv   intern.RDrv
	Output intern.UDrvOutput
	CHash  intern.CHash
}

// ClaimTuple is a tuple of claim(RDrv, CHash, UDrvOutput, TM).
type ClaimTuple struct {
	RDrv   intern.RDrv
	CHash  intern.CHash
	Output intern.UDrvOutput
	TM     intern.TM
}

// TrustModelTuple is a tuple of trust_model(TM, threshold, is_key, parent).
type TrustModelTuple struct {
	TM        intern.TM
	Threshold int
	IsKey     bool
	Parent    intern.TM
	HasParent bool
}

// Store owns every relation of the data model. The zero value is not usable;
// construct with NewStore.
type Store struct {
	Interner *intern.Interner

	FODs         map[UDrvCHash]struct{}
	UDrvs        map[intern.UDrv]struct{}
	UDrvOutputs  map[intern.UDrvOutput]struct{}
	HasOutput    map[OutputEdge]struct{}
	DependsOn    map[OutputEdge]struct{}
	RDrvs        map[intern.RDrv]struct{}
	Resolves     map[Resolves]struct{}
	ResolvesWith map[ResolvesWith]struct{}
	Claims       map[ClaimTuple]struct{}
	TrustModels  map[intern.TM]TrustModelTuple
}

// NewStore returns an empty Store bound to in.
func NewStore(in *intern.Interner) *Store {
	return &Store{
		Interner:     in,
		FODs:         make(map[UDrvCHash]struct{}),
		UDrvs:        make(map[intern.UDrv]struct{}),
		UDrvOutputs:  make(map[intern.UDrvOutput]struct{}),
		HasOutput:    make(map[OutputEdge]struct{}),
		DependsOn:    make(map[OutputEdge]struct{}),
		RDrvs:        make(map[intern.RDrv]struct{}),
		Resolves:     make(map[Resolves]struct{}),
		ResolvesWith: make(map[ResolvesWith]struct{}),
		Claims:       make(map[ClaimTuple]struct{}),
		TrustModels:  make(map[intern.TM]TrustModelTuple),
	}
}

// AddFod declares udrvName as a fixed-output derivation with contentHash,
// and synthesizes its default output "<udrv>$out".
func (s *Store) AddFod(udrvName, contentHash string) {
	udrv := s.Interner.InternUDrv(udrvName)
	chash := s.Interner.InternCHash(contentHash)
	s.UDrvs[udrv] = struct{}{}
	s.FODs[UDrvCHash{UDrv: udrv, CHash: chash}] = struct{}{}

	out := s.Interner.InternUDrvOutput(udrvName + "$out")
	s.UDrvOutputs[out] = struct{}{}
	s.HasOutput[OutputEdge{UDrv: udrv, Output: out}] = struct{}{}
}

// AddUnresolved declares udrvName's dependency and output edges.
func (s *Store) AddUnresolved(udrvName string, dependsOn, outputs []string) {
	udrv := s.Interner.InternUDrv(udrvName)
	s.UDrvs[udrv] = struct{}{}
	for _, dep := range dependsOn {
		out := s.Interner.InternUDrvOutput(dep)
		s.UDrvOutputs[out] = struct{}{}
		s.DependsOn[OutputEdge{UDrv: udrv, Output: out}] = struct{}{}
	}
	for _, o := range outputs {
		out := s.Interner.InternUDrvOutput(o)
		s.UDrvOutputs[out] = struct{}{}
		s.HasOutput[OutputEdge{UDrv: udrv, Output: out}] = struct{}{}
	}
}

// AddResolved records that rdrvName resolves udrvName, substituting
// resolutions (UDrvOutput name -> CHash name) for each consumed output.
func (s *Store) AddResolved(udrvName, rdrvName string, resolutions map[string]string) {
	udrv := s.Interner.InternUDrv(udrvName)
	rdrv := s.Interner.InternRDrv(rdrvName)
	s.UDrvs[udrv] = struct{}{}
	s.RDrvs[rdrv] = struct{}{}
	s.Resolves[Resolves{RDrv: rdrv, UDrv: udrv}] = struct{}{}

	for outName, hashName := range resolutions {
		out := s.Interner.InternUDrvOutput(outName)
		chash := s.Interner.InternCHash(hashName)
		s.UDrvOutputs[out] = struct{}{}
		s.DependsOn[OutputEdge{UDrv: udrv, Output: out}] = struct{}{}
		s.ResolvesWith[ResolvesWith{RDrv: rdrv, Output: out, CHash: chash}] = struct{}{}
	}
}

// AddClaim records one tuple per entry of outputs (UDrvOutput name -> CHash
// name), each asserted by assertedBy.
func (s *Store) AddClaim(rdrvName string, outputs map[string]string, assertedBy string) {
	rdrv := s.Interner.InternRDrv(rdrvName)
	tm := s.Interner.InternTM(assertedBy)
	s.RDrvs[rdrv] = struct{}{}

	for outName, hashName := range outputs {
		out := s.Interner.InternUDrvOutput(outName)
		chash := s.Interner.InternCHash(hashName)
		s.UDrvOutputs[out] = struct{}{}
		s.Claims[ClaimTuple{RDrv: rdrv, CHash: chash, Output: out, TM: tm}] = struct{}{}
	}
}

// AddTrustModel records trust_model(tm, threshold, isKey, parent). hasParent
// distinguishes a top-level composite (no parent) from one that has an
// explicit parent but threshold/isKey already pin the rest of the tuple.
func (s *Store) AddTrustModel(tm intern.TM, threshold int, isKey bool, parent intern.TM, hasParent bool) {
	s.TrustModels[tm] = TrustModelTuple{TM: tm, Threshold: threshold, IsKey: isKey, Parent: parent, HasParent: hasParent}
}
