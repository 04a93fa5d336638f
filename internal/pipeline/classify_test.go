package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/medcode-cli/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		options []string
		want    model.Family
	}{
		{
			name:    "cpt by bare five digit options",
			text:    "Which code describes removal of a benign skin lesion by excision?",
			options: []string{"11400", "11600", "17000", "69210"},
			want:    model.FamilyCPT,
		},
		{
			name:    "cpt keyword",
			text:    "Which CPT modifier indicates a distinct procedural service?",
			options: []string{"25", "59", "76", "91"},
			want:    model.FamilyCPT,
		},
		{
			name:    "icd-10 keyword",
			text:    "Select the correct diagnosis code for type 2 diabetes.",
			options: []string{"first", "second", "third", "fourth"},
			want:    model.FamilyICD10,
		},
		{
			name:    "icd-10 by option pattern",
			text:    "A patient is seen for essential hypertension. Which code is reported?",
			options: []string{"I10", "I11.9", "I12.9", "I15.0"},
			want:    model.FamilyICD10,
		},
		{
			name:    "hcpcs by option pattern",
			text:    "Which code reports a dexamethasone injection, 1 mg?",
			options: []string{"J1100", "J3301", "J1030", "J0702"},
			want:    model.FamilyHCPCS,
		},
		{
			name:    "hcpcs keyword outranks cpt keyword",
			text:    "Which HCPCS Level II code is used instead of the CPT code for this supply?",
			options: []string{"99070", "A4550", "99213", "36415"},
			want:    model.FamilyHCPCS,
		},
		{
			name:    "hcpcs keyword outranks icd option",
			text:    "A wheelchair is durable medical equipment. Which diagnosis supports it?",
			options: []string{"G80.9", "M62.81", "R26.2", "Z99.3"},
			want:    model.FamilyHCPCS,
		},
		{
			name:    "c-prefixed option does not trigger hcpcs",
			text:    "Which code reports this pass-through device?",
			options: []string{"C1713", "C1776", "C1889", "C2625"},
			want:    model.FamilyGeneral,
		},
		{
			name:    "c-prefixed option falls through to cpt",
			text:    "Which code is reported?",
			options: []string{"C1713", "27447", "C1776", "27446"},
			want:    model.FamilyCPT,
		},
		{
			name:    "full-width digits are folded",
			text:    "Which code describes this excision?",
			options: []string{"１１４００", "１１６００"},
			want:    model.FamilyCPT,
		},
		{
			name:    "general",
			text:    "What does HIPAA stand for?",
			options: []string{"Health Insurance Portability and Accountability Act", "Hospital Insurance Act", "Health Information Act", "None of these"},
			want:    model.FamilyGeneral,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &model.Question{Number: 1, Text: tt.text, Options: options(tt.options...)}
			assert.Equal(t, tt.want, Classify(q))
			assert.Equal(t, tt.want, q.Family)
		})
	}
}

func TestClassify_Idempotent(t *testing.T) {
	q := &model.Question{
		Number:  3,
		Text:    "Which ICD-10-CM code reports type 2 diabetes without complications?",
		Options: options("E11.9", "E10.9", "E11.65", "O24.419"),
	}
	first := Classify(q)
	assert.Equal(t, first, Classify(q))
	assert.Equal(t, model.FamilyICD10, q.Family)
}

func TestClassify_DoesNotMutateOptions(t *testing.T) {
	opts := []string{"１１４００"}
	classifyText("code?", opts)
	assert.Equal(t, "１１４００", opts[0])
}
