// Package chashfmt formats and parses the content hashes (CHash) that name
// build outputs, as IPFS-compatible CIDv1 values (raw codec, sha2-256
// multihash).
package chashfmt

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Of returns the canonical CIDv1 (raw + sha2-256) string naming data.
func Of(data []byte) (string, error) {
	c, err := OfCID(data)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// OfCID is Of but returns the parsed cid.Cid, for callers that need the
// binary form (e.g. to address a CAS backend directly).
func OfCID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Parse validates that s is a well-formed CIDv1 string, returning the
// parsed value. It does not require the raw+sha2-256 codec combination used
// by Of, since resolved derivations may reference content hashed by peers
// using a different but still valid multihash.
func Parse(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, err
	}
	if c.Version() != 1 {
		return cid.Undef, fmt.Errorf("chashfmt: %q is a CIDv%d, want CIDv1", s, c.Version())
	}
	return c, nil
}
