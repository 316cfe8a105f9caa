package reasoner

import (
	"fmt"
	"strings"
)

// CandidateReport summarizes one root-resolution candidate considered during
// root-output adequacy checking.
type CandidateReport struct {
	RDrv           string
	MinCardinality int
	Outputs        []string
}

// Report is the human-readable record of a single ComputeResult call,
// printable the way a verification run's banner is printed.
type Report struct {
	UDrvCount int
	FODCount  int
	RDrvCount int
	RootName  string

	Candidates    []CandidateReport
	VerifiedRoots []string
	Diagnostics   []string
}

// String renders the banner printed by `trustreason verify`.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n=== Verification Results ===\n\n")

	if len(r.VerifiedRoots) == 0 {
		fmt.Fprintf(&b, "Could not find sufficient evidence for verification:\n")
		for _, d := range r.Diagnostics {
			fmt.Fprintf(&b, "  - %s\n", d)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "Build consists of %d unresolved derivations\n", r.UDrvCount)
	fmt.Fprintf(&b, "with %d fixed-output derivations as leaves\n", r.FODCount)
	fmt.Fprintf(&b, "and %d resolved derivations in the evidence\n", r.RDrvCount)

	fmt.Fprintf(&b, "\nVerification status:\n")
	fmt.Fprintf(&b, "The root derivation [%s] was successfully resolved to:\n", r.RootName)
	for _, c := range r.Candidates {
		for _, line := range c.Outputs {
			fmt.Fprintf(&b, "  - %s\n", line)
		}
	}

	fmt.Fprintf(&b, "\nResolved via:\n")
	for _, name := range r.VerifiedRoots {
		fmt.Fprintf(&b, "  - %s\n", name)
	}

	for _, d := range r.Diagnostics {
		fmt.Fprintf(&b, "  note: %s\n", d)
	}

	return b.String()
}
