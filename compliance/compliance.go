// Package compliance selects how aggressively record ingestion rejects
// ambiguity: a malformed or unverifiable record can either abort the whole
// ingest (Strict) or be skipped and logged so the rest of the evidence set
// still reaches the reasoner (Permissive).
package compliance

// Mode selects how ingestion reacts to a record it cannot verify: a failed
// canonical parse, a signature that does not verify, or a CAS fetch miss.
type Mode int

const (
	// Permissive skips the offending record and continues.
	Permissive Mode = iota
	// Strict aborts the ingest on the first offending record.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "permissive"
}
