// Command trustreason builds, signs, stores, and verifies trust-reasoning
// evidence records: fixed-output derivations, unresolved and resolved
// derivation graphs, and the claims a trust hierarchy asserts over them.
package main

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/trustreason/compliance"
	"xdao.co/trustreason/ingest"
	"xdao.co/trustreason/keys"
	"xdao.co/trustreason/reasoner"
	"xdao.co/trustreason/receipt"
	"xdao.co/trustreason/record"
	"xdao.co/trustreason/storage"
	"xdao.co/trustreason/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "record":
		return cmdRecord(args[1:], out, errOut)
	case "store":
		return cmdStore(args[1:], out, errOut)
	case "ingest":
		return cmdIngest(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "trustreason: build, sign, store, and verify trust-reasoning evidence")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  trustreason key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  trustreason key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  trustreason key list")
	fmt.Fprintln(w, "  trustreason key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  trustreason record build --type FOD|UNRESOLVED|RESOLVED|CLAIM|TRUST-POLICY")
	fmt.Fprintln(w, "      [--meta Key=Value ...] [--subject Key=Value ...] [--body Key=Value ...]")
	fmt.Fprintln(w, "      [--seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path>]")
	fmt.Fprintln(w, "  trustreason store put --store-dir <dir> <file>")
	fmt.Fprintln(w, "  trustreason store get --store-dir <dir> --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  trustreason ingest --store-dir <dir> [--policy-cid <cid>] [--strict] <cid> [<cid> ...]")
	fmt.Fprintln(w, "  trustreason verify --trusted-keys k1,k2,... --threshold N --root <name>")
	fmt.Fprintln(w, "      --store-dir <dir> [--policy-cid <cid>] [--strict]")
	fmt.Fprintln(w, "      [--receipt-out <file> [--receipt-seed-hex <64hex> | --receipt-signer <name>]]")
	fmt.Fprintln(w, "      <cid> [<cid> ...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - KMS-lite stores keys under ~/.xdao/keys/<name> (0600 private key files)")
	fmt.Fprintln(w, "  - record build writes canonical record bytes to stdout (no trailing newline)")
	fmt.Fprintln(w, "  - --body may be repeated with the same key; repeated values form a sorted set")
	fmt.Fprintln(w, "  - verify prints a verification report and exits 0 if any root candidate is verified")
	fmt.Fprintln(w, "  - CIDs may also be supplied one per line on stdin with a trailing '-' argument")
}

// keyStoreFlags wires the --dir flag shared by every key subcommand.
type keyStoreFlags struct {
	dir string
}

func (k *keyStoreFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&k.dir, "dir", "", "Key store directory (default ~/.xdao/keys)")
}

func (k *keyStoreFlags) open() (*keys.KeyStore, error) {
	return keys.CreateKeyStore(k.dir)
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "trustreason key: local key management (KMS-lite)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  trustreason key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  trustreason key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  trustreason key list")
	fmt.Fprintln(w, "  trustreason key export --name <name> [--role <role>]")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ks keyStoreFlags
	ks.add(fs)
	var name, seedHex string
	var force bool
	fs.StringVar(&name, "name", "", "Key name (directory under the key store)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible demos)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}

	var seed []byte
	var err error
	if seedHex != "" {
		seed, err = keys.ParseSeedHex(seedHex)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, rerr := rand.Read(seed); rerr != nil {
			fmt.Fprintf(errOut, "rand: %v\n", rerr)
			return 1
		}
	}

	store, err := ks.open()
	if err != nil {
		fmt.Fprintf(errOut, "key store: %v\n", err)
		return 1
	}
	issuerKey, path, err := store.InitializeRootKey(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "init key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", issuerKey)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ks keyStoreFlags
	ks.add(fs)
	var from, role string
	var force bool
	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. author, reviewer)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}

	store, err := ks.open()
	if err != nil {
		fmt.Fprintf(errOut, "key store: %v\n", err)
		return 1
	}
	issuerKey, path, err := store.DeriveKeyFromRole(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created role key: %s\n", issuerKey)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ks keyStoreFlags
	ks.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	store, err := ks.open()
	if err != nil {
		fmt.Fprintf(errOut, "key store: %v\n", err)
		return 1
	}
	entries, err := store.ListKeys()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Identifier)
		for _, role := range e.Permissions {
			fmt.Fprintf(out, "  - %s\n", role)
		}
	}
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ks keyStoreFlags
	ks.add(fs)
	var name, role string
	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (if set, exports the derived role key)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	store, err := ks.open()
	if err != nil {
		fmt.Fprintf(errOut, "key store: %v\n", err)
		return 1
	}
	issuerKey, err := store.ExportKey(name, role)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, issuerKey)
	return 0
}

// kvList accumulates repeated "Key=Value" flag occurrences into a
// map[string][]string, preserving every value for a repeated key.
type kvList struct {
	values map[string][]string
}

func (l *kvList) String() string {
	if l == nil {
		return ""
	}
	var parts []string
	for k, vs := range l.values {
		for _, v := range vs {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, ",")
}

func (l *kvList) Set(entry string) error {
	k, v, ok := strings.Cut(entry, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected Key=Value, got %q", entry)
	}
	if l.values == nil {
		l.values = make(map[string][]string)
	}
	l.values[k] = append(l.values[k], v)
	return nil
}

func cmdRecord(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: trustreason record build ...")
		return 2
	}
	switch args[0] {
	case "build":
		return cmdRecordBuild(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown record subcommand: %s\n", args[0])
		return 2
	}
}

func cmdRecordBuild(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("record build", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var typ string
	var meta, subject, body kvList
	var ks keyStoreFlags
	ks.add(fs)
	var seedHex, signerName, signerRole, keyFile string

	fs.StringVar(&typ, "type", "", "Record type: FOD, UNRESOLVED, RESOLVED, CLAIM, or TRUST-POLICY")
	fs.Var(&meta, "meta", "META field as Key=Value (repeatable)")
	fs.Var(&subject, "subject", "SUBJECT field as Key=Value (repeatable)")
	fs.Var(&body, "body", "BODY field as Key=Value (repeatable)")
	fs.StringVar(&seedHex, "seed-hex", "", "Sign with an ed25519 seed given as 64 hex chars")
	fs.StringVar(&signerName, "signer", "", "Sign with a stored key by name")
	fs.StringVar(&signerRole, "signer-role", "", "When using --signer, optionally use a derived role key")
	fs.StringVar(&keyFile, "key-file", "", "Sign with the seed in this file")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if typ == "" {
		fmt.Fprintln(errOut, "missing --type")
		return 2
	}

	doc := record.Document{
		Type:    record.Type(typ),
		Meta:    meta.values,
		Subject: subject.values,
		Body:    body.values,
	}

	unsigned := seedHex == "" && signerName == "" && keyFile == ""
	if unsigned {
		data, err := record.Render(doc)
		if err != nil {
			fmt.Fprintf(errOut, "render: %v\n", err)
			return 1
		}
		_, _ = out.Write(data)
		return 0
	}

	store, err := ks.open()
	if err != nil {
		fmt.Fprintf(errOut, "key store: %v\n", err)
		return 1
	}
	seed, err := store.LoadSeed(seedHex, signerName, signerRole, keyFile)
	if err != nil {
		fmt.Fprintf(errOut, "load signer: %v\n", err)
		return 1
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	issuerKey, err := keys.IssuerKeyFromPublicKey(pub)
	if err != nil {
		fmt.Fprintf(errOut, "issuer key: %v\n", err)
		return 1
	}

	rec, err := record.SignEd25519(doc, issuerKey, priv)
	if err != nil {
		fmt.Fprintf(errOut, "sign: %v\n", err)
		return 1
	}
	fmt.Fprintf(errOut, "Issuer-Key: %s\n", issuerKey)
	_, _ = out.Write(rec.Raw)
	return 0
}

// storeFlags wires the --store-dir flag shared by "store", "ingest", and
// "verify": where to read and write evidence records. A local filesystem
// CAS is the only backend this CLI opens; it is immutable, offline, and
// deterministic, matching storage.CAS's contract without any plugin
// indirection.
type storeFlags struct {
	dir string
}

func (c *storeFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.dir, "store-dir", "", "Evidence store directory (required)")
}

func (c *storeFlags) open() (storage.CAS, error) {
	if c.dir == "" {
		return nil, fmt.Errorf("missing --store-dir")
	}
	return localfs.New(c.dir)
}

func cmdStore(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: trustreason store put|get ...")
		return 2
	}
	switch args[0] {
	case "put":
		return cmdStorePut(args[1:], out, errOut)
	case "get":
		return cmdStoreGet(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown store subcommand: %s\n", args[0])
		return 2
	}
}

func cmdStorePut(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("store put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	sf.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: trustreason store put [flags] <file>")
		return 2
	}
	cas, err := sf.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(fs.Arg(0)), err)
		return 1
	}
	id, err := cas.Put(data)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, id.String())
	return 0
}

func cmdStoreGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("store get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	sf.add(fs)
	var cidStr, outPath string
	fs.StringVar(&cidStr, "cid", "", "CID to fetch")
	fs.StringVar(&outPath, "out", "", "Output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cidStr == "" {
		fmt.Fprintln(errOut, "missing --cid")
		return 2
	}
	cas, err := sf.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	id, err := cid.Decode(cidStr)
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return 1
	}
	data, err := cas.Get(id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if outPath == "" {
		_, _ = out.Write(data)
		return 0
	}
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

// evidenceFlags wires the flags shared by "ingest" and "verify": where to
// fetch evidence from, an optional trust-policy CID to apply first, and
// whether a bad record aborts the whole batch.
type evidenceFlags struct {
	store     storeFlags
	policyCID string
	strict    bool
}

func (e *evidenceFlags) add(fs *flag.FlagSet) {
	e.store.add(fs)
	fs.StringVar(&e.policyCID, "policy-cid", "", "CID of a TRUST-POLICY record to apply before ingesting evidence")
	fs.BoolVar(&e.strict, "strict", false, "Abort on the first record that fails to parse or verify")
}

func (e *evidenceFlags) mode() compliance.Mode {
	if e.strict {
		return compliance.Strict
	}
	return compliance.Permissive
}

// resolveCIDs expands fs.Args(), replacing a "-" argument (normally the last
// one) with one CID per non-blank line read from stdin.
func resolveCIDs(fsArgs []string, stdin io.Reader) ([]string, error) {
	var out []string
	for _, a := range fsArgs {
		if a != "-" {
			out = append(out, a)
			continue
		}
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				out = append(out, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no evidence CIDs given")
	}
	return out, nil
}

func cmdIngest(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ev evidenceFlags
	ev.add(fs)
	var trustedKeys, threshold, rootName string
	fs.StringVar(&trustedKeys, "trusted-keys", "placeholder", "Comma-separated trusted key names (ingest does not check trust)")
	fs.StringVar(&threshold, "threshold", "1", "Placeholder threshold (ingest does not check trust)")
	fs.StringVar(&rootName, "root", "placeholder", "Placeholder root derivation name (ingest does not check trust)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cids, err := resolveCIDs(fs.Args(), os.Stdin)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	cas, err := ev.store.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	t, err := strconv.Atoi(threshold)
	if err != nil {
		t = 1
	}
	r, err := reasoner.New(strings.Split(trustedKeys, ","), t, rootName)
	if err != nil {
		fmt.Fprintf(errOut, "reasoner: %v\n", err)
		return 1
	}

	if ev.policyCID != "" {
		if err := ingest.ApplyTrustPolicy(cas, r, ev.policyCID); err != nil {
			fmt.Fprintf(errOut, "apply trust policy: %v\n", err)
			return 1
		}
	}
	res, err := ingest.Ingest(cas, r, cids, ev.mode())
	if err != nil {
		fmt.Fprintf(errOut, "ingest: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "ingested %d record(s)\n", res.Ingested)
	for _, s := range res.Skipped {
		fmt.Fprintf(out, "skipped %s: %s\n", s.CID, s.Reason)
	}
	return 0
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var ev evidenceFlags
	ev.add(fs)
	var trustedKeys string
	var threshold int
	var rootName string
	var receiptOut string
	var ks keyStoreFlags
	ks.add(fs)
	var seedHex, signerName, signerRole, keyFile string
	fs.StringVar(&trustedKeys, "trusted-keys", "", "Comma-separated trusted key names")
	fs.IntVar(&threshold, "threshold", 1, "Minimum number of trusted keys that must agree")
	fs.StringVar(&rootName, "root", "", "Expected root derivation name")
	fs.StringVar(&receiptOut, "receipt-out", "", "Write a verification receipt to this file")
	fs.StringVar(&seedHex, "receipt-seed-hex", "", "Sign the receipt with an ed25519 seed given as 64 hex chars")
	fs.StringVar(&signerName, "receipt-signer", "", "Sign the receipt with a stored key by name")
	fs.StringVar(&signerRole, "receipt-signer-role", "", "When using --receipt-signer, optionally use a derived role key")
	fs.StringVar(&keyFile, "receipt-key-file", "", "Sign the receipt with the seed in this file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if trustedKeys == "" {
		fmt.Fprintln(errOut, "missing --trusted-keys")
		return 2
	}
	if rootName == "" {
		fmt.Fprintln(errOut, "missing --root")
		return 2
	}

	cids, err := resolveCIDs(fs.Args(), os.Stdin)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	cas, err := ev.store.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	r, err := reasoner.New(strings.Split(trustedKeys, ","), threshold, rootName)
	if err != nil {
		fmt.Fprintf(errOut, "reasoner: %v\n", err)
		return 1
	}

	if ev.policyCID != "" {
		if err := ingest.ApplyTrustPolicy(cas, r, ev.policyCID); err != nil {
			fmt.Fprintf(errOut, "apply trust policy: %v\n", err)
			return 1
		}
	}
	res, err := ingest.Ingest(cas, r, cids, ev.mode())
	if err != nil {
		fmt.Fprintf(errOut, "ingest: %v\n", err)
		return 1
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(errOut, "skipped %s: %s\n", s.CID, s.Reason)
	}

	verified, err := r.ComputeResult()
	if err != nil {
		fmt.Fprintf(errOut, "compute result: %v\n", err)
		return 1
	}
	fmt.Fprint(out, r.Report().String())

	if receiptOut != "" {
		if err := writeReceipt(r.Report(), ev.policyCID, cids, receiptOut, ks, seedHex, signerName, signerRole, keyFile); err != nil {
			fmt.Fprintf(errOut, "write receipt: %v\n", err)
			return 1
		}
	}

	sort.Strings(verified)
	if len(verified) == 0 {
		return 1
	}
	return 0
}

func writeReceipt(report *reasoner.Report, policyCID string, evidenceCIDs []string, path string, ks keyStoreFlags, seedHex, signerName, signerRole, keyFile string) error {
	opts := receipt.RenderOptions{}
	if seedHex != "" || signerName != "" || keyFile != "" {
		store, err := ks.open()
		if err != nil {
			return err
		}
		seed, err := store.LoadSeed(seedHex, signerName, signerRole, keyFile)
		if err != nil {
			return err
		}
		priv := ed25519.NewKeyFromSeed(seed)
		pub := priv.Public().(ed25519.PublicKey)
		issuerKey, err := keys.IssuerKeyFromPublicKey(pub)
		if err != nil {
			return err
		}
		opts.SignerKey = issuerKey
		opts.PrivateKey = priv
	}
	data := receipt.Render(report, policyCID, evidenceCIDs, opts)
	return os.WriteFile(path, data, 0o644)
}
