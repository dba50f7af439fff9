package catalog

// headers.go maps arbitrary spreadsheet headers onto the canonical
// {code, name, rate} schema.
//
// Headers are normalized (lowercased, trimmed, internal whitespace and
// underscores removed) and looked up in a synonym table. The first header in
// encounter order that resolves to a canonical field wins that binding; later
// duplicates for the same field are ignored, not an error. Headers that
// resolve to nothing are ignored so files with extra columns keep working.

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SynonymTable maps normalized header tokens to canonical fields. It is an
// immutable value passed into ResolveHeaders; never mutate a shared table
// after construction.
type SynonymTable map[string]Field

// DefaultSynonyms returns the built-in header synonym table.
func DefaultSynonyms() SynonymTable {
	return SynonymTable{
		"code":     FieldCode,
		"bookcode": FieldCode,
		"isbn":     FieldCode,
		"name":     FieldName,
		"bookname": FieldName,
		"title":    FieldName,
		"rate":     FieldRate,
		"price":    FieldRate,
		"cost":     FieldRate,
	}
}

// synonymFile is the YAML shape for header synonym overrides:
//
//	synonyms:
//	  code: [sku, item code]
//	  rate: [unit price]
type synonymFile struct {
	Synonyms map[string][]string `yaml:"synonyms"`
}

// LoadSynonyms reads a YAML override file and merges its entries over the
// built-in defaults. Overrides win on token collisions.
func LoadSynonyms(path string) (SynonymTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read synonyms file: %w", err)
	}

	var sf synonymFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse synonyms file: %w", err)
	}

	table := DefaultSynonyms()
	for field, tokens := range sf.Synonyms {
		canonical := Field(strings.ToLower(strings.TrimSpace(field)))
		switch canonical {
		case FieldCode, FieldName, FieldRate:
		default:
			return nil, fmt.Errorf("synonyms file: unknown canonical field %q", field)
		}
		for _, tok := range tokens {
			if norm := NormalizeHeader(tok); norm != "" {
				table[norm] = canonical
			}
		}
	}
	return table, nil
}

// HeaderMap holds the column position bound to each canonical field.
// RateCol is -1 when no header resolved to rate; rate is optional.
type HeaderMap struct {
	CodeCol int
	NameCol int
	RateCol int
}

// NormalizeHeader lowercases a header and strips surrounding and internal
// whitespace, underscores, and hyphens, so "Book_Code", "book code", and
// "BOOKCODE" all compare equal.
func NormalizeHeader(h string) string {
	var b strings.Builder
	b.Grow(len(h))
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		switch r {
		case ' ', '\t', '_', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ResolveHeaders binds the uploaded header row to the canonical schema.
// Returns a SchemaError naming each required field that stayed unbound.
func ResolveHeaders(headers []string, syn SynonymTable) (HeaderMap, error) {
	hm := HeaderMap{CodeCol: -1, NameCol: -1, RateCol: -1}

	for i, h := range headers {
		field, ok := syn[NormalizeHeader(h)]
		if !ok {
			continue
		}
		// First binding wins; later duplicates are ignored.
		switch field {
		case FieldCode:
			if hm.CodeCol < 0 {
				hm.CodeCol = i
			}
		case FieldName:
			if hm.NameCol < 0 {
				hm.NameCol = i
			}
		case FieldRate:
			if hm.RateCol < 0 {
				hm.RateCol = i
			}
		}
	}

	var missing []Field
	if hm.CodeCol < 0 {
		missing = append(missing, FieldCode)
	}
	if hm.NameCol < 0 {
		missing = append(missing, FieldName)
	}
	if len(missing) > 0 {
		return HeaderMap{}, &SchemaError{Missing: missing}
	}
	return hm, nil
}
