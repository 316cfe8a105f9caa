package storage

import "github.com/ipfs/go-cid"

// CAS is a minimal content-addressable storage interface. The trust
// reasoner's evidence (canonical record.Record bytes for fods, unresolved
// derivations, resolutions, claims, and trust policies) is stored and
// retrieved through this interface; ingest fetches by the CID a caller
// already holds, never by search.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written (callers are responsible for supplying canonical bytes, i.e. record.Record.Raw).
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
