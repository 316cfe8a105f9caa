// Package keys provides the signing-key helpers used to produce and verify
// trust-element identities: issuer-key formatting, deterministic role-subkey
// derivation, and a simple local filesystem key store.
//
// Stable:
//   - Pure, deterministic primitives for issuer-key formatting and role-seed derivation.
//
// Experimental:
//   - Filesystem-backed key storage and convenience helpers (KeyStore and related functions).
//     These are local-first utilities and are not part of the long-term protocol contract.
package keys
