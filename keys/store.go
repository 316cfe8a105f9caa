package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"xdao.co/trustreason/trust"
)

// KeyStore is a simple local-first key management system holding the
// signing keys a record gets signed with before it is handed to the
// reasoner as a claim's asserted_by identity.
//
// Features:
// - Supports Ed25519 keys only
// - Stores keys on the local filesystem
// - Generates deterministic subkeys based on roles
//
// This package is designed to be straightforward and explicit.
type KeyStore struct {
	Directory string
}

// KeyEntry names one stored key by its key-store identifier (the name a
// claim's SUBJECT.Name can carry, which ingest.signerIdentity prefers over
// the raw Issuer-Key), plus the roles it has derived subkeys for.
type KeyEntry struct {
	Identifier  string
	Permissions []string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".xdao", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootKeyPath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "root.key")
}

func (ks *KeyStore) roleKeyPath(identifier, role string) string {
	return filepath.Join(ks.Directory, identifier, "roles", role+".key")
}

// CheckKeyName validates a key identifier. It also rejects trust.DefaultName
// ("default"), the synthetic composite every Reasoner's trust.New always
// creates: a stored key sharing that name would collide with the
// reasoner's own top-level trust element once its identifier reached a
// claim's asserted_by field.
func CheckKeyName(identifier string) error {
	if identifier == "" {
		return errors.New("identifier cannot be empty")
	}
	if identifier == trust.DefaultName {
		return fmt.Errorf("identifier %q is reserved for the reasoner's synthetic default trust element", identifier)
	}
	return checkNameChars(identifier, "identifier")
}

func CheckRole(role string) error {
	if role == "" {
		return errors.New("role cannot be empty")
	}
	return checkNameChars(role, "role")
}

func checkNameChars(name, what string) error {
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", char, what)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func (ks *KeyStore) writeSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func (ks *KeyStore) readSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(strings.TrimSpace(string(data)))
}

// InitializeRootKey stores seed as identifier's root key and returns the
// issuer-key string its signatures will carry.
func (ks *KeyStore) InitializeRootKey(identifier string, seed []byte, overwrite bool) (issuerKey string, filePath string, err error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", "", err
	}
	filePath = ks.rootKeyPath(identifier)
	if err := ks.writeSeed(filePath, seed, overwrite); err != nil {
		return "", "", err
	}
	return GenerateIssuerKeyFromSeed(seed), filePath, nil
}

// DeriveKeyFromRole derives and stores a role subkey under an existing root
// key, so one operator identity can sign with per-role keys.
func (ks *KeyStore) DeriveKeyFromRole(from, role string, overwrite bool) (issuerKey string, filePath string, err error) {
	if err := CheckKeyName(from); err != nil {
		return "", "", err
	}
	if err := CheckRole(role); err != nil {
		return "", "", err
	}
	rootSeed, err := ks.readSeed(ks.rootKeyPath(from))
	if err != nil {
		return "", "", err
	}
	roleSeed, err := DeriveRoleSeed(rootSeed, role)
	if err != nil {
		return "", "", err
	}
	filePath = ks.roleKeyPath(from, role)
	if err := ks.writeSeed(filePath, roleSeed, overwrite); err != nil {
		return "", "", err
	}
	return GenerateIssuerKeyFromSeed(roleSeed), filePath, nil
}

// ExportKey returns the issuer-key string for a stored root key, or for a
// derived role key when role is non-empty.
func (ks *KeyStore) ExportKey(identifier string, role string) (string, error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", err
	}
	var seed []byte
	var err error
	if role == "" {
		seed, err = ks.readSeed(ks.rootKeyPath(identifier))
	} else {
		if err := CheckRole(role); err != nil {
			return "", err
		}
		seed, err = ks.readSeed(ks.roleKeyPath(identifier, role))
	}
	if err != nil {
		return "", err
	}
	return GenerateIssuerKeyFromSeed(seed), nil
}

// LoadSeed resolves a signer however the caller named it: an inline hex
// seed, a seed file path, or a stored key by name (optionally a role
// subkey), matching the CLI's --seed-hex / --key-file / --signer flags.
// When more than one is given, they are tried in that order and the first
// non-empty one wins.
func (ks *KeyStore) LoadSeed(seedHex, signerName, signerRole, keyFile string) ([]byte, error) {
	if seedHex != "" {
		return ParseSeedHex(seedHex)
	}
	if keyFile != "" {
		return ks.readSeed(keyFile)
	}
	if signerName != "" {
		if err := CheckKeyName(signerName); err != nil {
			return nil, err
		}
		if signerRole == "" {
			return ks.readSeed(ks.rootKeyPath(signerName))
		}
		if err := CheckRole(signerRole); err != nil {
			return nil, err
		}
		return ks.readSeed(ks.roleKeyPath(signerName, signerRole))
	}
	return nil, errors.New("no signer provided")
}

// ListKeys enumerates stored identities and the role subkeys each carries,
// sorted for stable CLI output.
func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var identifiers []string
	for _, entry := range entries {
		if entry.IsDir() {
			identifiers = append(identifiers, entry.Name())
		}
	}
	sort.Strings(identifiers)

	var result []KeyEntry
	for _, identifier := range identifiers {
		rolesDir := filepath.Join(ks.Directory, identifier, "roles")
		roleEntries, rerr := os.ReadDir(rolesDir)
		var roles []string
		if rerr == nil {
			for _, roleEntry := range roleEntries {
				if roleEntry.IsDir() {
					continue
				}
				if strings.HasSuffix(roleEntry.Name(), ".key") {
					roles = append(roles, strings.TrimSuffix(roleEntry.Name(), ".key"))
				}
			}
			sort.Strings(roles)
		}
		result = append(result, KeyEntry{Identifier: identifier, Permissions: roles})
	}
	return result, nil
}
