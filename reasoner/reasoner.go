// Package reasoner implements the Verifier: it orchestrates a run over a
// Fact Store and Trust Model Configuration, drives the trust-propagation
// closure through the datalog fixed-point engine, checks graph
// well-formedness, and answers the root-verification question.
package reasoner

import (
	"fmt"
	"sort"

	"xdao.co/trustreason/datalog"
	"xdao.co/trustreason/facts"
	"xdao.co/trustreason/intern"
	"xdao.co/trustreason/trust"
)

// ErrorCode tags the three error categories a Reasoner can report.
type ErrorCode string

const (
	// InvalidConfig is returned only from New, for a bad trusted-key list or threshold.
	InvalidConfig ErrorCode = "InvalidConfig"
	// StateMisuse is returned for add_* after compute_result, or a second compute_result call.
	StateMisuse ErrorCode = "StateMisuse"
	// UnknownInput is reserved for future validation; the current core degrades
	// gracefully instead of using it (inconsistent input only shows up as
	// Report diagnostics and an empty verified set).
	UnknownInput ErrorCode = "UnknownInput"
)

// Error is a tagged error value surfaced to callers.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// state is the Reasoner's lifecycle: Ingesting (accepts add_*) ->
// Evaluating (inside a single compute_result call) -> Completed (read-only).
type state int

const (
	stateIngesting state = iota
	stateEvaluating
	stateCompleted
)

// Reasoner is a TrustModelReasoner: owns a string interner, a fact store,
// and a trust-model configuration, and answers whether ExpectedRoot is
// trustworthy. Not safe for concurrent use.
type Reasoner struct {
	interner *intern.Interner
	store    *facts.Store
	trust    *trust.Config
	state    state

	lastReport *Report
}

// New constructs a Reasoner. trustedKeys must be non-empty, threshold must
// be between 1 and len(trustedKeys) inclusive, or New returns an
// InvalidConfig error.
func New(trustedKeys []string, threshold int, expectedRoot string) (*Reasoner, error) {
	in := intern.New()
	store := facts.NewStore(in)
	cfg, err := trust.New(in, store, trustedKeys, threshold, expectedRoot)
	if err != nil {
		return nil, newError(InvalidConfig, "%s", err)
	}
	return &Reasoner{interner: in, store: store, trust: cfg, state: stateIngesting}, nil
}

// AddComposite registers an additional composite trust model, generalizing
// beyond the two-level default/keys hierarchy New builds. Only valid during
// Ingesting.
func (r *Reasoner) AddComposite(name string, threshold int, parent string) (string, error) {
	if err := r.requireIngesting(); err != nil {
		return "", err
	}
	tm, err := r.trust.AddComposite(r.interner, r.store, name, threshold, parent)
	if err != nil {
		return "", newError(InvalidConfig, "%s", err)
	}
	return r.interner.LookupTM(tm), nil
}

func (r *Reasoner) requireIngesting() error {
	if r.state != stateIngesting {
		return newError(StateMisuse, "ingestion is not allowed once compute_result has been called")
	}
	return nil
}

// AddFod implements the add_fod ingestion operation.
func (r *Reasoner) AddFod(udrv, contentHash string) error {
	if err := r.requireIngesting(); err != nil {
		return err
	}
	r.store.AddFod(udrv, contentHash)
	return nil
}

// AddUnresolved implements the add_unresolved ingestion operation.
func (r *Reasoner) AddUnresolved(udrv string, dependsOn, outputs []string) error {
	if err := r.requireIngesting(); err != nil {
		return err
	}
	r.store.AddUnresolved(udrv, dependsOn, outputs)
	return nil
}

// AddResolved implements the add_resolved ingestion operation.
func (r *Reasoner) AddResolved(udrv, rdrv string, resolutions map[string]string) error {
	if err := r.requireIngesting(); err != nil {
		return err
	}
	r.store.AddResolved(udrv, rdrv, resolutions)
	return nil
}

// AddClaim implements the add_claim ingestion operation.
func (r *Reasoner) AddClaim(rdrv string, outputs map[string]string, assertedBy string) error {
	if err := r.requireIngesting(); err != nil {
		return err
	}
	r.store.AddClaim(rdrv, outputs, assertedBy)
	return nil
}

// attestedFact is "TM vouches that building RDrv produces CHash for Output".
type attestedFact struct {
	TM     intern.TM
	RDrv   intern.RDrv
	CHash  intern.CHash
	Output intern.UDrvOutput
}

// counterKey is the side-table key for the "exactly at threshold" counter.
// It is intentionally not a datalog relation: it must persist across rounds
// and grow by increment, which a Datalog relation cannot express.
type counterKey struct {
	Parent intern.TM
	RDrv   intern.RDrv
	CHash  intern.CHash
	Output intern.UDrvOutput
}

type parentInfo struct {
	Parent    intern.TM
	Threshold int
}

// ComputeResult runs the verifier to completion and returns the names of
// every verified RDrv. It may be called
// exactly once; a second call is a StateMisuse error. It never errors on
// data: insufficient evidence simply yields an empty slice, with details
// available via Report after the call returns.
func (r *Reasoner) ComputeResult() ([]string, error) {
	if r.state == stateCompleted {
		return nil, newError(StateMisuse, "compute_result has already been called on this reasoner")
	}
	r.state = stateEvaluating

	report := &Report{
		UDrvCount: len(r.store.UDrvs),
		FODCount:  len(r.store.FODs),
		RDrvCount: len(r.store.RDrvs),
		RootName:  r.interner.LookupUDrv(r.trust.ExpectedRoot),
	}

	// Step 1: base relations are plain sets populated directly by add_*;
	// there are no recursive base rules, so they are already at fixed point.

	// Step 2 + 3: build the parent/threshold index and run the trust closure.
	parentWithThreshold := r.buildParentWithThreshold()
	counters := r.trustClosure(parentWithThreshold)

	// Step 4: graph well-formedness — every FOD must be a leaf.
	if bad := r.nonLeafFODs(); len(bad) > 0 {
		for _, name := range bad {
			report.Diagnostics = append(report.Diagnostics, fmt.Sprintf("FOD %q has outgoing dependency edges; a fixed-output derivation must be a leaf", name))
		}
		r.lastReport = report
		r.state = stateCompleted
		return nil, nil
	}

	// Step 5: root resolution.
	candidates := r.resolutionsOf(r.trust.ExpectedRoot)
	if len(candidates) == 0 {
		report.Diagnostics = append(report.Diagnostics, fmt.Sprintf("root derivation %q was not resolved", report.RootName))
		r.lastReport = report
		r.state = stateCompleted
		return nil, nil
	}

	// Step 6: root output adequacy.
	rootOutputs := r.outputsOf(r.trust.ExpectedRoot)
	var verified []string
	for _, rdrv := range candidates {
		name := r.interner.LookupRDrv(rdrv)
		m, outputLines, ok := r.minCardinality(rdrv, rootOutputs, counters)
		report.Candidates = append(report.Candidates, CandidateReport{
			RDrv:           name,
			MinCardinality: m,
			Outputs:        outputLines,
		})
		if !ok {
			report.Diagnostics = append(report.Diagnostics, fmt.Sprintf("root has no declared outputs; cannot establish adequacy for %q", name))
			continue
		}
		if m >= r.trust.Threshold {
			verified = append(verified, name)
		} else {
			report.Diagnostics = append(report.Diagnostics, fmt.Sprintf("%q: minimum cardinality %d below threshold %d", name, m, r.trust.Threshold))
		}
	}
	sort.Strings(verified)
	report.VerifiedRoots = verified

	r.lastReport = report
	r.state = stateCompleted
	return verified, nil
}

// Report returns the diagnostic record of the last compute_result call, or
// nil if compute_result has not been called yet.
func (r *Reasoner) Report() *Report { return r.lastReport }

func (r *Reasoner) buildParentWithThreshold() map[intern.TM]parentInfo {
	idx := make(map[intern.TM]parentInfo, len(r.store.TrustModels))
	for tm, tuple := range r.store.TrustModels {
		if !tuple.HasParent {
			continue
		}
		parentTuple, ok := r.store.TrustModels[tuple.Parent]
		if !ok {
			continue
		}
		idx[tm] = parentInfo{Parent: tuple.Parent, Threshold: parentTuple.Threshold}
	}
	return idx
}

// trustClosure seeds `attested` from claim and propagates it up the trust
// hierarchy via the datalog engine. It returns the authoritative cardinality
// counter table. attested is self-joining: children and their derived
// parents live in the same Variable.
func (r *Reasoner) trustClosure(parentWithThreshold map[intern.TM]parentInfo) map[counterKey]int {
	it := datalog.NewIteration()
	attested := datalog.Declare[attestedFact](it, "attested")

	seed := make([]attestedFact, 0, len(r.store.Claims))
	for c := range r.store.Claims {
		seed = append(seed, attestedFact{TM: c.TM, RDrv: c.RDrv, CHash: c.CHash, Output: c.Output})
	}
	attested.Insert(seed...)

	counters := make(map[counterKey]int)

	for it.Changed() {
		datalog.FromLeapjoin(attested, attested,
			func(s attestedFact) attestedFact {
				info := parentWithThreshold[s.TM]
				return attestedFact{TM: info.Parent, RDrv: s.RDrv, CHash: s.CHash, Output: s.Output}
			},
			func(s attestedFact) bool {
				info, ok := parentWithThreshold[s.TM]
				if !ok {
					return false
				}
				key := counterKey{Parent: info.Parent, RDrv: s.RDrv, CHash: s.CHash, Output: s.Output}
				counters[key]++
				return counters[key] == info.Threshold
			},
		)
	}

	return counters
}

func (r *Reasoner) nonLeafFODs() []string {
	var bad []string
	for fod := range r.store.FODs {
		for edge := range r.store.DependsOn {
			if edge.UDrv == fod.UDrv {
				bad = append(bad, r.interner.LookupUDrv(fod.UDrv))
				break
			}
		}
	}
	sort.Strings(bad)
	return bad
}

func (r *Reasoner) resolutionsOf(udrv intern.UDrv) []intern.RDrv {
	var out []intern.RDrv
	for edge := range r.store.Resolves {
		if edge.UDrv == udrv {
			out = append(out, edge.RDrv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.interner.LookupRDrv(out[i]) < r.interner.LookupRDrv(out[j])
	})
	return out
}

func (r *Reasoner) outputsOf(udrv intern.UDrv) []intern.UDrvOutput {
	var out []intern.UDrvOutput
	for edge := range r.store.HasOutput {
		if edge.UDrv == udrv {
			out = append(out, edge.Output)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.interner.LookupUDrvOutput(out[i]) < r.interner.LookupUDrvOutput(out[j])
	})
	return out
}

// minCardinality reads the counter for (default, rdrv, _, output) for every
// declared root output and returns the minimum across all of them. When
// several content hashes were claimed for the same output, the best
// supported hash's count stands for that output. ok is false when the
// root declares no outputs at all, in
// which case adequacy cannot be established (the root, unlike any other
// derivation, is required to declare outputs).
func (r *Reasoner) minCardinality(rdrv intern.RDrv, outputs []intern.UDrvOutput, counters map[counterKey]int) (int, []string, bool) {
	if len(outputs) == 0 {
		return 0, nil, false
	}
	min := -1
	var lines []string
	for _, out := range outputs {
		best := 0
		for key, count := range counters {
			if key.Parent != r.trust.Default || key.RDrv != rdrv || key.Output != out {
				continue
			}
			if count > best {
				best = count
			}
		}
		lines = append(lines, fmt.Sprintf("Output %s of %s has cardinality %d", r.interner.LookupUDrvOutput(out), r.interner.LookupRDrv(rdrv), best))
		if min == -1 || best < min {
			min = best
		}
	}
	return min, lines, true
}
