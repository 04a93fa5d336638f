package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/medcode-cli/internal/model"
)

// CodeReference is a resolved code description used to ground a prompt.
type CodeReference struct {
	Family      model.Family
	Code        string
	Description string
}

const answerSystemPrompt = `You are a certified professional medical coder (CPC) answering multiple-choice exam questions on CPT, ICD-10-CM, HCPCS Level II, and general coding guidelines. Choose exactly one option.`

const answerFormat = `Respond in exactly this format:
Answer: <letter A-D>
Confidence: <integer 1-10>
Reasoning: <one short paragraph>`

func writeQuestion(b *strings.Builder, q *model.Question) {
	fmt.Fprintf(b, "Question %d (%s):\n%s\n\n", q.Number, q.Family, q.Text)
	for _, o := range q.Options {
		fmt.Fprintf(b, "%s. %s\n", o.Letter, o.Text)
	}
}

func writeReferences(b *strings.Builder, refs []CodeReference) {
	if len(refs) == 0 {
		return
	}
	b.WriteString("\nReference descriptions for the codes in the options:\n")
	for _, r := range refs {
		fmt.Fprintf(b, "- %s %s: %s\n", r.Family, r.Code, strings.ReplaceAll(r.Description, "\n", " "))
	}
}

func answerPrompt(q *model.Question, refs []CodeReference) string {
	var b strings.Builder
	writeQuestion(&b, q)
	writeReferences(&b, refs)
	b.WriteString("\n")
	b.WriteString(answerFormat)
	return b.String()
}

func verificationFormat() string {
	return fmt.Sprintf(`End your response with this block and nothing after it:
%s
{"finalAnswer": "<letter A-D>", "confidence": <integer 1-10>, "reasoningSummary": "<two sentences>"}
%s`, VerificationStart, VerificationEnd)
}

func verifyPrompt(q *model.Question, refs []CodeReference, prior *model.AnswerRecord, instructions string) string {
	var b strings.Builder
	writeQuestion(&b, q)
	writeReferences(&b, refs)
	if prior != nil {
		fmt.Fprintf(&b, "\nA previous answer chose %s with confidence %d/10.\n", prior.Choice, prior.Confidence)
		if prior.Reasoning != "" {
			fmt.Fprintf(&b, "Its reasoning: %s\n", prior.Reasoning)
		}
	}
	b.WriteString("\n")
	b.WriteString(instructions)
	b.WriteString("\n\n")
	b.WriteString(verificationFormat())
	return b.String()
}

const explainSystemPrompt = `You are a medical coding instructor. Explain codes briefly and precisely.`

func explainPrompt(q *model.Question, ref CodeReference, submitted string) string {
	var b strings.Builder
	writeQuestion(&b, q)
	fmt.Fprintf(&b, "\nThe correct answer involves %s code %s (%s).", ref.Family, ref.Code, ref.Description)
	if submitted != "" {
		fmt.Fprintf(&b, " The answer %s was chosen instead.", submitted)
	}
	b.WriteString("\nIn at most three sentences, explain what this code covers and when it applies in scenarios like this one. Reply with the explanation only.")
	return b.String()
}
