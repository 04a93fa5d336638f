package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFamily(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Family
		ok   bool
	}{
		{"CPT", FamilyCPT, true},
		{"cpt", FamilyCPT, true},
		{"ICD-10", FamilyICD10, true},
		{"icd10", FamilyICD10, true},
		{"HCPCS", FamilyHCPCS, true},
		{"general", FamilyGeneral, true},
		{"DRG", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseFamily(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFamilyValidCode(t *testing.T) {
	t.Parallel()

	assert.True(t, FamilyCPT.ValidCode("11400"))
	assert.False(t, FamilyCPT.ValidCode("1140"))
	assert.False(t, FamilyCPT.ValidCode("114000"))
	assert.True(t, FamilyICD10.ValidCode("S52.521A"))
	assert.True(t, FamilyICD10.ValidCode("E11"))
	assert.False(t, FamilyICD10.ValidCode("e11"))
	assert.True(t, FamilyHCPCS.ValidCode("E0100"))
	assert.True(t, FamilyHCPCS.ValidCode("C1713"))
	assert.False(t, FamilyGeneral.ValidCode("11400"))
}

func TestCodeBookRoundTrip(t *testing.T) {
	t.Parallel()

	b := NewCodeBook()
	require.NoError(t, b.Put(FamilyCPT, CodeEntry{Code: "11400", Description: "Excision, benign lesion, trunk/arms/legs; 0.5 cm or less"}))
	require.NoError(t, b.Put(FamilyICD10, CodeEntry{Code: "D23.5", Description: "Other benign neoplasm of skin of trunk", Explanation: "trunk lesions"}))
	require.Error(t, b.Put(FamilyGeneral, CodeEntry{Code: "x"}))
	require.Error(t, b.Put(FamilyCPT, CodeEntry{Code: "1140"}))
	require.Error(t, b.Put(FamilyICD10, CodeEntry{Code: "e11.9"}))

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var got CodeBook
	require.NoError(t, json.Unmarshal(data, &got))

	e, ok := got.Get(FamilyCPT, "11400")
	require.True(t, ok)
	assert.Equal(t, "Excision, benign lesion, trunk/arms/legs; 0.5 cm or less", e.Description)
	e, ok = got.Get(FamilyICD10, "D23.5")
	require.True(t, ok)
	assert.Equal(t, "trunk lesions", e.Explanation)
	assert.Equal(t, 2, got.Len())
}

func TestCodeBookRejectsUnknownFamily(t *testing.T) {
	t.Parallel()

	var b CodeBook
	err := json.Unmarshal([]byte(`{"CPT": [], "DRG": [{"code": "470", "description": "x"}]}`), &b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown code family")

	err = json.Unmarshal([]byte(`{"GENERAL": []}`), &b)
	require.Error(t, err)
}

func TestCodeBookRejectsDuplicateAndMalformed(t *testing.T) {
	t.Parallel()

	var b CodeBook
	err := json.Unmarshal([]byte(`{"CPT": [{"code": "11400", "description": "a"}, {"code": "11400", "description": "b"}]}`), &b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	err = json.Unmarshal([]byte(`{"HCPCS": [{"code": "11400", "description": "a"}]}`), &b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid HCPCS code")
}

func TestCodeBookCloneIsIndependent(t *testing.T) {
	t.Parallel()

	b := NewCodeBook()
	require.NoError(t, b.Put(FamilyCPT, CodeEntry{Code: "17000", Description: "Destruction premalignant lesion"}))
	c := b.Clone()
	require.NoError(t, c.Put(FamilyCPT, CodeEntry{Code: "17000", Description: "changed"}))

	e, _ := b.Get(FamilyCPT, "17000")
	assert.Equal(t, "Destruction premalignant lesion", e.Description)
}

func TestAnswerKeyNumbers(t *testing.T) {
	t.Parallel()

	k := AnswerKey{3: "D", 1: "B", 2: "C"}
	assert.Equal(t, []int{1, 2, 3}, k.Numbers())
}
