// Package ingest hydrates signed record bytes out of a content-addressable
// store and feeds them into a Reasoner, bridging the wire format (record)
// and storage layer (storage.CAS) to the in-memory evaluation core
// (reasoner).
package ingest

import (
	"fmt"
	"strings"

	"xdao.co/trustreason/compliance"
	"xdao.co/trustreason/reasoner"
	"xdao.co/trustreason/record"
	"xdao.co/trustreason/storage"
)

// Skip records one record that was not ingested.
type Skip struct {
	CID    string
	Reason string
}

// Result summarizes one Ingest call.
type Result struct {
	Ingested int
	Skipped  []Skip
}

// Ingest fetches each of cidStrs from cas, parses it as a canonical record,
// verifies its signature when one is present, and feeds it into r via the
// matching Add* call. Under compliance.Strict, the first problem aborts and
// returns an error; under compliance.Permissive, the offending record is
// recorded in Result.Skipped and ingestion continues.
func Ingest(cas storage.CAS, r *reasoner.Reasoner, cidStrs []string, mode compliance.Mode) (*Result, error) {
	res := &Result{}
	for _, s := range cidStrs {
		if err := ingestOne(cas, r, s); err != nil {
			if mode == compliance.Strict {
				return res, fmt.Errorf("ingest %s: %w", s, err)
			}
			res.Skipped = append(res.Skipped, Skip{CID: s, Reason: err.Error()})
			continue
		}
		res.Ingested++
	}
	return res, nil
}

func ingestOne(cas storage.CAS, r *reasoner.Reasoner, cidStr string) error {
	rec, err := storage.GetRecord(cas, cidStr)
	if err != nil {
		return err
	}

	body := rec.Sections["BODY"]
	switch rec.Type {
	case record.TypeFod:
		udrv := body.Get("UDrv")
		hash := body.Get("Content-Hash")
		if udrv == "" || hash == "" {
			return fmt.Errorf("fod record missing UDrv or Content-Hash")
		}
		return r.AddFod(udrv, hash)

	case record.TypeUnresolved:
		udrv := body.Get("UDrv")
		if udrv == "" {
			return fmt.Errorf("unresolved record missing UDrv")
		}
		return r.AddUnresolved(udrv, body.GetAll("Depends-On"), body.GetAll("Output"))

	case record.TypeResolved:
		udrv := body.Get("UDrv")
		rdrv := body.Get("RDrv")
		if udrv == "" || rdrv == "" {
			return fmt.Errorf("resolved record missing UDrv or RDrv")
		}
		resolutions, err := pairs(body.GetAll("Resolution"))
		if err != nil {
			return err
		}
		return r.AddResolved(udrv, rdrv, resolutions)

	case record.TypeClaim:
		rdrv := body.Get("RDrv")
		if rdrv == "" {
			return fmt.Errorf("claim record missing RDrv")
		}
		outputs, err := pairs(body.GetAll("Output-Resolution"))
		if err != nil {
			return err
		}
		signer, err := signerIdentity(rec)
		if err != nil {
			return err
		}
		return r.AddClaim(rdrv, outputs, signer)

	case record.TypeTrustPolicy:
		return fmt.Errorf("trust-policy records are applied via ApplyTrustPolicy, not Ingest")

	default:
		return fmt.Errorf("unknown record type %q", rec.Type)
	}
}

// signerIdentity names the trust element a claim is asserted_by: the
// record's SUBJECT.Name if present (a human-assigned key alias), falling
// back to the raw Issuer-Key string so two records from the same key always
// name the same trust element even without a shared alias registry.
func signerIdentity(rec *record.Record) (string, error) {
	if name := rec.Sections["SUBJECT"].Get("Name"); name != "" {
		return name, nil
	}
	issuer := rec.IssuerKey()
	if issuer == "" {
		return "", fmt.Errorf("claim record has neither SUBJECT.Name nor a signed Issuer-Key")
	}
	return issuer, nil
}

// pairs parses "key=value" entries into a map, as produced by a field whose
// values encode an (UDrvOutput, CHash) resolution.
func pairs(entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("malformed resolution entry %q, want key=value", e)
		}
		out[k] = v
	}
	return out, nil
}
