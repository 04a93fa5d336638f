package pipeline

import (
	"strings"

	"github.com/sells-group/medcode-cli/internal/model"
)

// ExtractCodes returns the family's code tokens found in options, in option
// order, upper-cased. Duplicates are kept. GENERAL yields nothing.
func ExtractCodes(options []string, family model.Family) []string {
	re := family.Pattern()
	if re == nil {
		return nil
	}
	var codes []string
	for _, o := range options {
		for _, tok := range re.FindAllString(fold(o), -1) {
			codes = append(codes, strings.ToUpper(tok))
		}
	}
	return codes
}

// Dedupe drops repeated codes, keeping first occurrences in order.
func Dedupe(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
