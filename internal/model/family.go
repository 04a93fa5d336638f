package model

import (
	"regexp"
	"strings"
)

// Family is a medical code family a question is classified into.
type Family string

const (
	FamilyCPT     Family = "CPT"
	FamilyICD10   Family = "ICD-10"
	FamilyHCPCS   Family = "HCPCS"
	FamilyGeneral Family = "GENERAL"
)

// CodeFamilies lists the families backed by a code cache, in store order.
var CodeFamilies = []Family{FamilyCPT, FamilyICD10, FamilyHCPCS}

// AllFamilies lists every classification tag including GENERAL.
var AllFamilies = []Family{FamilyCPT, FamilyICD10, FamilyHCPCS, FamilyGeneral}

// Token patterns per family. All are case-insensitive; extracted tokens are
// upper-cased before they reach the cache so lookups stay exact.
var (
	cptPattern   = regexp.MustCompile(`\b\d{5}\b`)
	icd10Pattern = regexp.MustCompile(`(?i)\b[A-Z]\d{2}(?:\.[0-9A-Z]{1,4})?\b`)
	hcpcsPattern = regexp.MustCompile(`(?i)\b[A-Z]\d{4}\b`)
)

// ParseFamily maps a user-facing family label to a Family. Matching ignores
// case and accepts "ICD10" for ICD-10.
func ParseFamily(s string) (Family, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CPT":
		return FamilyCPT, true
	case "ICD-10", "ICD10":
		return FamilyICD10, true
	case "HCPCS":
		return FamilyHCPCS, true
	case "GENERAL":
		return FamilyGeneral, true
	default:
		return "", false
	}
}

// HasCodes reports whether the family has a code pattern and cache partition.
func (f Family) HasCodes() bool {
	return f == FamilyCPT || f == FamilyICD10 || f == FamilyHCPCS
}

// Pattern returns the token pattern for the family, or nil for GENERAL.
func (f Family) Pattern() *regexp.Regexp {
	switch f {
	case FamilyCPT:
		return cptPattern
	case FamilyICD10:
		return icd10Pattern
	case FamilyHCPCS:
		return hcpcsPattern
	default:
		return nil
	}
}

// ValidCode reports whether code is a complete, canonical token of the family.
func (f Family) ValidCode(code string) bool {
	p := f.Pattern()
	if p == nil || code != strings.ToUpper(code) {
		return false
	}
	loc := p.FindStringIndex(code)
	return loc != nil && loc[0] == 0 && loc[1] == len(code)
}
