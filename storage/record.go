package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/trustreason/chashfmt"
	"xdao.co/trustreason/record"
)

// PutRecord renders doc through record.Render and stores the canonical
// bytes in cas, returning the resulting CID. Rendering first (rather than
// letting a caller Put arbitrary bytes) guarantees the stored object is
// always the reparse-stable form GetRecord expects back.
func PutRecord(cas CAS, doc record.Document) (cid.Cid, error) {
	data, err := record.Render(doc)
	if err != nil {
		return cid.Undef, fmt.Errorf("storage: render record: %w", err)
	}
	return cas.Put(data)
}

// PutSignedRecord stores an already-rendered, possibly-signed rec (e.g. the
// output of record.SignEd25519) by its canonical Raw bytes.
func PutSignedRecord(cas CAS, rec *record.Record) (cid.Cid, error) {
	if rec == nil {
		return cid.Undef, fmt.Errorf("storage: nil record")
	}
	return cas.Put(rec.Raw)
}

// GetRecord fetches the object named by cidStr, parses it as a canonical
// record, and verifies its signature when one is present. This is the one
// fetch-and-validate path every evidence consumer (ingest.Ingest,
// ingest.ApplyTrustPolicy) shares, so "fetch a record by CID" always means
// parsed-and-verified, never bytes a caller must remember to check.
func GetRecord(cas CAS, cidStr string) (*record.Record, error) {
	id, err := chashfmt.Parse(cidStr)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid cid %q: %w", cidStr, err)
	}
	raw, err := cas.Get(id)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch %s: %w", cidStr, err)
	}
	rec, err := record.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("storage: parse %s: %w", cidStr, err)
	}
	if rec.Signature() != "" {
		if err := rec.Verify(); err != nil {
			return nil, fmt.Errorf("storage: verify %s: %w", cidStr, err)
		}
	}
	return rec, nil
}
