package pipeline

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medcode-cli/internal/model"
)

// ErrParse marks a model response that does not have the required shape.
var ErrParse = eris.New("pipeline: parse failure")

// Labels of the answer format. A label may carry markdown emphasis or a list
// bullet ("**Answer:** B", "- Confidence: 7/10"). The answer letter must be
// parenthesized or end at punctuation or end of line, so prose such as
// "Answer: a modifier is not needed" is not read as a choice.
var (
	answerLabel     = regexp.MustCompile(`(?im)^[\s*#>_-]*(?:final\s+)?answer[\s*_]*:[\s*_]*(?:\(([A-D])\)|([A-D])\)|([A-D])[\s*_]*(?:$|[.,;:\-–]))`)
	confidenceLabel = regexp.MustCompile(`(?im)^[\s*#>_-]*confidence[\s*_]*:[\s*_]*(\d{1,2})\b`)
	reasoningLabel  = regexp.MustCompile(`(?im)^[\s*#>_-]*reasoning[\s*_]*:[\s*_]*`)
)

// ParseAnswer extracts the Answer / Confidence / Reasoning triple. Answer and
// confidence are required and confidence must be 1-10; reasoning defaults to
// "". The first occurrence of each label wins.
func ParseAnswer(text string) (model.AnswerRecord, error) {
	m := answerLabel.FindStringSubmatch(text)
	if m == nil {
		return model.AnswerRecord{}, eris.Wrap(ErrParse, "missing Answer label")
	}
	choice := strings.ToUpper(m[1] + m[2] + m[3])

	c := confidenceLabel.FindStringSubmatch(text)
	if c == nil {
		return model.AnswerRecord{}, eris.Wrap(ErrParse, "missing Confidence label")
	}
	conf, err := strconv.Atoi(c[1])
	if err != nil || conf < 1 || conf > 10 {
		return model.AnswerRecord{}, eris.Wrapf(ErrParse, "confidence %q out of range", c[1])
	}

	return model.AnswerRecord{Choice: choice, Confidence: conf, Reasoning: reasoning(text)}, nil
}

// reasoning returns the text after the Reasoning label up to the next Answer
// or Confidence label.
func reasoning(text string) string {
	loc := reasoningLabel.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	end := len(rest)
	for _, re := range []*regexp.Regexp{answerLabel, confidenceLabel} {
		if l := re.FindStringIndex(rest); l != nil && l[0] < end {
			end = l[0]
		}
	}
	return strings.TrimSpace(rest[:end])
}

// Verification block markers. The block must be the last thing in the
// response and each marker must appear exactly once.
const (
	VerificationStart = "<<<VERIFICATION>>>"
	VerificationEnd   = "<<<END>>>"
)

// Verification is the structured result a verification strategy returns.
type Verification struct {
	FinalAnswer      string `json:"finalAnswer"`
	Confidence       int    `json:"confidence"`
	ReasoningSummary string `json:"reasoningSummary"`
}

// verificationDoc uses pointers so absent fields are told apart from zero
// values.
type verificationDoc struct {
	FinalAnswer      *string `json:"finalAnswer"`
	Confidence       *int    `json:"confidence"`
	ReasoningSummary *string `json:"reasoningSummary"`
}

// ParseVerification locates the terminator block and decodes it against the
// fixed schema. Any deviation (missing or repeated markers, trailing text,
// unknown or missing fields, bad values) returns ErrParse.
func ParseVerification(text string) (Verification, error) {
	body, err := verificationBody(text)
	if err != nil {
		return Verification{}, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	var doc verificationDoc
	if err := dec.Decode(&doc); err != nil {
		return Verification{}, eris.Wrapf(ErrParse, "decode block: %v", err)
	}
	if dec.More() {
		return Verification{}, eris.Wrap(ErrParse, "block holds more than one value")
	}

	switch {
	case doc.FinalAnswer == nil:
		return Verification{}, eris.Wrap(ErrParse, "missing finalAnswer")
	case doc.Confidence == nil:
		return Verification{}, eris.Wrap(ErrParse, "missing confidence")
	case doc.ReasoningSummary == nil:
		return Verification{}, eris.Wrap(ErrParse, "missing reasoningSummary")
	}

	answer := strings.ToUpper(strings.TrimSpace(*doc.FinalAnswer))
	if !model.IsValidChoice(answer) {
		return Verification{}, eris.Wrapf(ErrParse, "finalAnswer %q is not A-D", *doc.FinalAnswer)
	}
	if *doc.Confidence < 1 || *doc.Confidence > 10 {
		return Verification{}, eris.Wrapf(ErrParse, "confidence %d out of range", *doc.Confidence)
	}
	return Verification{
		FinalAnswer:      answer,
		Confidence:       *doc.Confidence,
		ReasoningSummary: strings.TrimSpace(*doc.ReasoningSummary),
	}, nil
}

func verificationBody(text string) (string, error) {
	if n := strings.Count(text, VerificationStart); n != 1 {
		return "", eris.Wrapf(ErrParse, "found %d start markers", n)
	}
	if n := strings.Count(text, VerificationEnd); n != 1 {
		return "", eris.Wrapf(ErrParse, "found %d end markers", n)
	}
	start := strings.Index(text, VerificationStart) + len(VerificationStart)
	end := strings.Index(text, VerificationEnd)
	if end < start {
		return "", eris.Wrap(ErrParse, "end marker precedes start marker")
	}
	if strings.TrimSpace(text[end+len(VerificationEnd):]) != "" {
		return "", eris.Wrap(ErrParse, "text after end marker")
	}
	return stripFence(strings.TrimSpace(text[start:end])), nil
}

// stripFence removes a single ```json fence wrapping the whole block.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return ""
	}
	return strings.TrimSpace(s)
}
