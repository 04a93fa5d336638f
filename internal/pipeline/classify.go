// Package pipeline classifies exam questions, grounds them with cached code
// descriptions, answers them, escalates low-confidence answers through
// verification strategies, and scores the results.
package pipeline

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/medcode-cli/internal/model"
)

var (
	hcpcsKeywords = []string{"hcpcs", "level ii code", "durable medical equipment", "prosthetic"}
	icd10Keywords = []string{"icd-10", "diagnosis code", "diagnostic code", "according to icd"}
	cptKeywords   = []string{"cpt", "procedure code", "surgical code"}

	// hcpcsToken captures the letter so C-prefixed codes (CPT category III
	// and OPPS pass-through codes share the shape) can be excluded.
	hcpcsToken = regexp.MustCompile(`(?i)\b([A-Z])\d{4}\b`)
)

// Classify tags q with its code family and returns it. The result depends
// only on the question and option text, so classifying twice is a no-op.
// Precedence: HCPCS, ICD-10, CPT, then GENERAL.
func Classify(q *model.Question) model.Family {
	q.Family = classifyText(q.Text, q.OptionTexts())
	return q.Family
}

func classifyText(text string, options []string) model.Family {
	folded := make([]string, len(options))
	for i, o := range options {
		folded[i] = fold(o)
	}
	options = folded
	all := fold(text) + "\n" + strings.Join(options, "\n")
	lower := strings.ToLower(all)

	if containsAny(lower, hcpcsKeywords) || anyHCPCSOption(options) {
		return model.FamilyHCPCS
	}
	if containsAny(lower, icd10Keywords) || anyMatch(options, model.FamilyICD10.Pattern()) {
		return model.FamilyICD10
	}
	if containsAny(lower, cptKeywords) || anyMatch(options, model.FamilyCPT.Pattern()) {
		return model.FamilyCPT
	}
	return model.FamilyGeneral
}

func anyHCPCSOption(options []string) bool {
	for _, o := range options {
		for _, m := range hcpcsToken.FindAllStringSubmatch(o, -1) {
			if !strings.EqualFold(m[1], "C") {
				return true
			}
		}
	}
	return false
}

func anyMatch(options []string, re *regexp.Regexp) bool {
	for _, o := range options {
		if re.MatchString(o) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// fold applies NFKC so full-width digits and ligatures from PDF extraction
// match the ASCII code patterns.
func fold(s string) string {
	return norm.NFKC.String(s)
}
