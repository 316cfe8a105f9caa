// Package record implements a canonical, strictly-validated, signable text
// wire format for the four kinds of evidence the reasoner ingests: fixed-
// output derivations, unresolved derivations, resolved derivations, and
// claims. Records allow repeated-key list fields (a derivation can depend
// on several outputs) within a strict canonical form: preamble/postamble
// framing, fixed section order, sorted keys, and the guarantee that parsing
// and re-rendering a valid record reproduces its bytes exactly.
package record

import (
	"bufio"
	"bytes"
	"io"
	"sort"
	"strings"
	"unicode/utf8"
)

// Type names the four evidence kinds plus the trust-policy record used to
// distribute a trust model configuration out of band.
type Type string

const (
	TypeFod         Type = "FOD"
	TypeUnresolved  Type = "UNRESOLVED"
	TypeResolved    Type = "RESOLVED"
	TypeClaim       Type = "CLAIM"
	TypeTrustPolicy Type = "TRUST-POLICY"
)

// SectionOrder is the canonical order of sections in every record.
var SectionOrder = []string{"META", "SUBJECT", "BODY", "CRYPTO"}

const (
	Preamble  = "-----BEGIN TRUSTREASON RECORD-----"
	Postamble = "-----END TRUSTREASON RECORD-----"
)

// Field is one key with one or more values. Multiple values are rendered as
// repeated "Key: value" lines, sorted lexicographically by value so that
// canonical bytes are reproducible regardless of insertion order; the
// field is treated as a set, not a sequence.
type Field struct {
	Key    string
	Values []string
}

// Section is an ordered, sorted-by-key collection of fields.
type Section struct {
	Name   string
	Fields []Field
}

// Get returns the single value for key, or "" if absent or multi-valued.
func (s Section) Get(key string) string {
	for _, f := range s.Fields {
		if f.Key == key && len(f.Values) == 1 {
			return f.Values[0]
		}
	}
	return ""
}

// GetAll returns every value recorded for key, in canonical sorted order.
func (s Section) GetAll(key string) []string {
	for _, f := range s.Fields {
		if f.Key == key {
			return append([]string(nil), f.Values...)
		}
	}
	return nil
}

// Record is a parsed, canonicalized document.
type Record struct {
	Type     Type
	Sections map[string]Section
	Raw      []byte // canonical bytes
	Signed   []byte // bytes covered by the signature: BEGIN through end of BODY, inclusive
}

// Document is the builder-facing counterpart to Record, used with Render.
type Document struct {
	Type    Type
	Meta    map[string][]string
	Subject map[string][]string
	Body    map[string][]string
	Crypto  map[string][]string
}

// Render produces canonical bytes from doc.
func Render(doc Document) ([]byte, error) {
	if doc.Type == "" {
		return nil, newError(KindRender, "RECORD-REN-001", "record: Type must be set")
	}
	sections := []struct {
		name   string
		fields map[string][]string
	}{
		{"META", mergeType(doc.Meta, doc.Type)},
		{"SUBJECT", doc.Subject},
		{"BODY", doc.Body},
		{"CRYPTO", doc.Crypto},
	}

	var sb strings.Builder
	sb.WriteString(Preamble)
	sb.WriteString("\n")

	for i, sec := range sections {
		sb.WriteString(sec.name)
		sb.WriteString("\n")

		keys := make([]string, 0, len(sec.fields))
		for k := range sec.fields {
			if k == "" {
				return nil, newError(KindRender, "RECORD-REN-002", "record: empty key")
			}
			if !isASCII(k) {
				return nil, newError(KindRender, "RECORD-REN-003", "record: non-ASCII key")
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			values := append([]string(nil), sec.fields[k]...)
			if len(values) == 0 {
				return nil, newError(KindRender, "RECORD-REN-004", "record: field with no values")
			}
			sort.Strings(values)
			for j, v := range values {
				if j > 0 && v == values[j-1] {
					continue
				}
				if v == "" {
					return nil, newError(KindRender, "RECORD-REN-005", "record: empty value")
				}
				if strings.ContainsAny(v, "\n\r") {
					return nil, newError(KindRender, "RECORD-REN-006", "record: value must not contain newlines")
				}
				if strings.HasPrefix(v, " ") || strings.HasSuffix(v, " ") || strings.HasSuffix(v, "\t") {
					return nil, newError(KindRender, "RECORD-REN-007", "record: value must not have leading/trailing whitespace")
				}
				sb.WriteString(k)
				sb.WriteString(": ")
				sb.WriteString(v)
				sb.WriteString("\n")
			}
		}

		if i != len(sections)-1 {
			sb.WriteString("\n")
		}
	}

	sb.WriteString(Postamble)
	return []byte(sb.String()), nil
}

func mergeType(meta map[string][]string, t Type) map[string][]string {
	out := make(map[string][]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["Type"] = []string{string(t)}
	return out
}

// Parse parses a record document, rejecting anything that would not
// reproduce itself byte-for-byte through Render.
func Parse(data []byte) (*Record, error) {
	if !utf8.Valid(data) {
		return nil, newError(KindParse, "RECORD-STR-001", "record: must be valid UTF-8")
	}
	if bytes.Contains(data, []byte("\r")) {
		return nil, newError(KindParse, "RECORD-STR-002", "record: CR line endings not allowed")
	}
	if bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		return nil, newError(KindParse, "RECORD-STR-003", "record: BOM not allowed")
	}
	if len(data) > 0 && data[len(data)-1] == '\n' {
		return nil, newError(KindParse, "RECORD-STR-004", "record: trailing newline not allowed")
	}
	if !bytes.HasPrefix(data, []byte(Preamble)) {
		return nil, newError(KindParse, "RECORD-STR-005", "record: missing preamble")
	}
	if !bytes.HasSuffix(data, []byte(Postamble)) {
		return nil, newError(KindParse, "RECORD-STR-006", "record: missing postamble")
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(line) > 0 && (line[len(line)-1] == ' ' || line[len(line)-1] == '\t') {
			return nil, newError(KindParse, "RECORD-STR-007", "record: trailing whitespace forbidden")
		}
	}

	sections := make(map[string]Section)
	reader := bufio.NewReader(bytes.NewReader(data))
	readLine := func() (string, error) {
		l, err := reader.ReadString('\n')
		if err == io.EOF {
			return strings.TrimRight(l, "\n"), io.EOF
		}
		if err != nil {
			return "", err
		}
		return strings.TrimRight(l, "\n"), nil
	}

	first, err := readLine()
	if err != nil && err != io.EOF {
		return nil, err
	}
	if first != Preamble {
		return nil, newError(KindParse, "RECORD-STR-008", "record: preamble must be exact and on its own line")
	}

	sectionIndex := -1
	var currSection string
	var currOrder []string
	currValues := make(map[string][]string)
	seenSection := map[string]bool{}
	afterSeparator := false
	seenAnySection := false

	flushSection := func() {
		if currSection == "" {
			return
		}
		fields := make([]Field, 0, len(currOrder))
		seen := map[string]bool{}
		for _, k := range currOrder {
			if seen[k] {
				continue
			}
			seen[k] = true
			vals := append([]string(nil), currValues[k]...)
			sort.Strings(vals)
			fields = append(fields, Field{Key: k, Values: vals})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
		sections[currSection] = Section{Name: currSection, Fields: fields}
		currSection = ""
		currOrder = nil
		currValues = make(map[string][]string)
	}

	for {
		line, rerr := readLine()
		if rerr != nil && rerr != io.EOF {
			return nil, rerr
		}

		if line == Postamble {
			if afterSeparator {
				return nil, newError(KindParse, "RECORD-STR-009", "record: unexpected blank line before postamble")
			}
			flushSection()
			break
		}

		if isSectionHeader(line) {
			seenAnySection = true
			if currSection != "" {
				return nil, newError(KindParse, "RECORD-STR-010", "record: missing blank line between sections")
			}
			if seenSection[line] {
				return nil, newError(KindParse, "RECORD-STR-011", "record: duplicate section")
			}
			flushSection()
			sectionIndex++
			if sectionIndex >= len(SectionOrder) || SectionOrder[sectionIndex] != line {
				return nil, newError(KindParse, "RECORD-STR-012", "record: sections missing or out of order")
			}
			if sectionIndex == 0 && afterSeparator {
				return nil, newError(KindParse, "RECORD-STR-013", "record: blank line before first section not allowed")
			}
			if sectionIndex > 0 && !afterSeparator {
				return nil, newError(KindParse, "RECORD-STR-010", "record: missing blank line between sections")
			}
			afterSeparator = false
			seenSection[line] = true
			currSection = line
			continue
		}

		if !seenAnySection {
			return nil, newError(KindParse, "RECORD-STR-014", "record: unexpected content before first section")
		}

		if line == "" {
			if currSection == "" {
				return nil, newError(KindParse, "RECORD-STR-015", "record: blank line outside section not allowed")
			}
			if currSection == "CRYPTO" {
				return nil, newError(KindParse, "RECORD-STR-016", "record: blank line after CRYPTO not allowed")
			}
			if afterSeparator {
				return nil, newError(KindParse, "RECORD-STR-017", "record: multiple blank lines between sections not allowed")
			}
			flushSection()
			afterSeparator = true
			continue
		}

		if currSection == "" {
			return nil, newError(KindParse, "RECORD-STR-018", "record: content outside section")
		}
		if afterSeparator {
			return nil, newError(KindParse, "RECORD-STR-019", "record: expected section header after blank line")
		}
		if !strings.Contains(line, ": ") {
			return nil, newError(KindParse, "RECORD-STR-020", "record: invalid key-value formatting")
		}
		kv := strings.SplitN(line, ": ", 2)
		key, val := kv[0], kv[1]
		if key == "" || !isASCII(key) {
			return nil, newError(KindParse, "RECORD-STR-021", "record: invalid or non-ASCII key")
		}
		if strings.HasPrefix(val, " ") {
			return nil, newError(KindParse, "RECORD-STR-022", "record: value must not start with a space")
		}
		currOrder = append(currOrder, key)
		currValues[key] = append(currValues[key], val)

		if rerr == io.EOF {
			return nil, newError(KindParse, "RECORD-STR-023", "record: missing postamble")
		}
	}

	for _, s := range SectionOrder {
		if !seenSection[s] {
			return nil, newError(KindParse, "RECORD-STR-024", "record: sections missing or out of order")
		}
	}

	typ := Type(sections["META"].Get("Type"))
	if typ == "" {
		return nil, newError(KindParse, "RECORD-STR-025", "record: META.Type is required")
	}

	doc := Document{
		Type:    typ,
		Meta:    toFieldMap(sections["META"]),
		Subject: toFieldMap(sections["SUBJECT"]),
		Body:    toFieldMap(sections["BODY"]),
		Crypto:  toFieldMap(sections["CRYPTO"]),
	}
	canonical, rerr := Render(doc)
	if rerr != nil {
		return nil, rerr
	}
	if !bytes.Equal(data, canonical) {
		return nil, newError(KindCanonical, "RECORD-CANON-001", "record: input is not in canonical form")
	}

	marker := []byte("\nCRYPTO\n")
	idx := bytes.Index(canonical, marker)
	if idx < 0 {
		return nil, newError(KindParse, "RECORD-STR-026", "record: cannot determine signature scope")
	}
	signed := canonical[:idx+1]

	return &Record{Type: typ, Sections: sections, Raw: canonical, Signed: signed}, nil
}

func toFieldMap(s Section) map[string][]string {
	out := make(map[string][]string, len(s.Fields))
	for _, f := range s.Fields {
		if f.Key == "Type" && s.Name == "META" {
			continue
		}
		out[f.Key] = f.Values
	}
	return out
}

func isSectionHeader(line string) bool {
	for _, s := range SectionOrder {
		if line == s {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
