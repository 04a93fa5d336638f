package model

import (
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
)

// ErrUnknownFamily is returned when a persisted document names a family with
// no code partition.
var ErrUnknownFamily = eris.New("model: unknown code family")

// CodeEntry is one cached code description. Description is fetched once and
// never changed afterwards; Explanation may be rewritten by enrichment.
type CodeEntry struct {
	Code        string `json:"code" yaml:"code"`
	Description string `json:"description" yaml:"description"`
	Explanation string `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

// CodeBook is the persisted cache document: one closed partition per code
// family, at most one entry per (family, code).
type CodeBook struct {
	parts map[Family]map[string]CodeEntry
}

// NewCodeBook returns an empty CodeBook with every family partition present.
func NewCodeBook() *CodeBook {
	b := &CodeBook{parts: make(map[Family]map[string]CodeEntry, len(CodeFamilies))}
	for _, f := range CodeFamilies {
		b.parts[f] = make(map[string]CodeEntry)
	}
	return b
}

// Get returns the entry for (family, code).
func (b *CodeBook) Get(family Family, code string) (CodeEntry, bool) {
	part, ok := b.parts[family]
	if !ok {
		return CodeEntry{}, false
	}
	e, ok := part[code]
	return e, ok
}

// Put inserts or replaces the entry for (family, code). Codes that would be
// rejected on load are rejected here too.
func (b *CodeBook) Put(family Family, e CodeEntry) error {
	part, ok := b.parts[family]
	if !ok {
		return eris.Errorf("model: family %q has no code partition", family)
	}
	if !family.ValidCode(e.Code) {
		return eris.Errorf("model: %q is not a valid %s code", e.Code, family)
	}
	part[e.Code] = e
	return nil
}

// Len returns the number of entries across all families.
func (b *CodeBook) Len() int {
	n := 0
	for _, part := range b.parts {
		n += len(part)
	}
	return n
}

// Entries returns the entries of a family sorted by code.
func (b *CodeBook) Entries(family Family) []CodeEntry {
	part := b.parts[family]
	out := make([]CodeEntry, 0, len(part))
	for _, e := range part {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Clone returns a deep copy.
func (b *CodeBook) Clone() *CodeBook {
	c := NewCodeBook()
	for f, part := range b.parts {
		for k, e := range part {
			c.parts[f][k] = e
		}
	}
	return c
}

// MarshalJSON writes {"CPT": [...], "ICD-10": [...], "HCPCS": [...]}.
func (b *CodeBook) MarshalJSON() ([]byte, error) {
	doc := make(map[string][]CodeEntry, len(CodeFamilies))
	for _, f := range CodeFamilies {
		doc[string(f)] = b.Entries(f)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads the family-keyed document. Unknown family keys,
// duplicate codes, and codes that do not match the family pattern are
// rejected.
func (b *CodeBook) UnmarshalJSON(data []byte) error {
	var doc map[string][]CodeEntry
	if err := json.Unmarshal(data, &doc); err != nil {
		return eris.Wrap(err, "model: decode code book")
	}
	fresh := NewCodeBook()
	for key, entries := range doc {
		family, ok := ParseFamily(key)
		if !ok || !family.HasCodes() || string(family) != key {
			return eris.Wrapf(ErrUnknownFamily, "key %q", key)
		}
		for _, e := range entries {
			if err := fresh.add(family, e); err != nil {
				return err
			}
		}
	}
	*b = *fresh
	return nil
}

// AddLoaded inserts an entry read from a persisted store, applying the same
// validation as UnmarshalJSON.
func (b *CodeBook) AddLoaded(family Family, e CodeEntry) error {
	if !family.HasCodes() {
		return eris.Wrapf(ErrUnknownFamily, "family %q", family)
	}
	return b.add(family, e)
}

func (b *CodeBook) add(family Family, e CodeEntry) error {
	if !family.ValidCode(e.Code) {
		return eris.Errorf("model: %q is not a valid %s code", e.Code, family)
	}
	if _, dup := b.parts[family][e.Code]; dup {
		return eris.Errorf("model: duplicate %s code %q", family, e.Code)
	}
	b.parts[family][e.Code] = e
	return nil
}
