package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"xdao.co/trustreason/reasoner"
	"xdao.co/trustreason/record"
	"xdao.co/trustreason/storage"
)

// ApplyTrustPolicy fetches and parses a TRUST-POLICY record and registers
// every composite trust model it declares, each BODY.Composite entry
// encoded as "name=threshold:parent". It must run before ComputeResult,
// since AddComposite is only valid while the reasoner is Ingesting; claims
// ingested before or after it are treated alike, because the trust
// hierarchy is only read when ComputeResult runs.
func ApplyTrustPolicy(cas storage.CAS, r *reasoner.Reasoner, cidStr string) error {
	rec, err := storage.GetRecord(cas, cidStr)
	if err != nil {
		return fmt.Errorf("fetch trust policy: %w", err)
	}
	if rec.Type != record.TypeTrustPolicy {
		return fmt.Errorf("record %s is not a trust-policy record", cidStr)
	}

	for _, entry := range rec.Sections["BODY"].GetAll("Composite") {
		name, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("malformed Composite entry %q", entry)
		}
		thresholdStr, parent, ok := strings.Cut(rest, ":")
		if !ok {
			return fmt.Errorf("malformed Composite entry %q", entry)
		}
		threshold, err := strconv.Atoi(thresholdStr)
		if err != nil {
			return fmt.Errorf("malformed Composite entry %q: %w", entry, err)
		}
		if _, err := r.AddComposite(name, threshold, parent); err != nil {
			return fmt.Errorf("add composite %q: %w", name, err)
		}
	}
	return nil
}
