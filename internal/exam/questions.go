package exam

import (
	"context"
	"encoding/json"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/medcode-cli/internal/model"
)

// ErrNoQuestions is returned when a source yields no questions.
var ErrNoQuestions = eris.New("exam: no questions found")

var (
	questionStart = regexp.MustCompile(`(?m)^[ \t]*(\d{1,4})[.)][ \t]+`)
	optionMarker  = regexp.MustCompile(`(?:^|\s)\(?([A-D])[.)]\s+`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// LoadQuestions reads a question set. ".json", ".yaml" and ".yml" sources hold
// a list of questions (a results file written by WriteResults loads the same
// way, answers included); anything else is parsed as numbered plain text.
func LoadQuestions(ctx context.Context, src string) ([]model.Question, error) {
	data, err := readSource(ctx, src)
	if err != nil {
		return nil, err
	}

	var qs []model.Question
	switch ext(src) {
	case ".json":
		if err := json.Unmarshal(data, &qs); err != nil {
			return nil, eris.Wrapf(err, "exam: decode %s", src)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &qs); err != nil {
			return nil, eris.Wrapf(err, "exam: decode %s", src)
		}
	default:
		qs = ParseText(string(data))
	}

	if err := validate(qs); err != nil {
		return nil, eris.Wrapf(err, "exam: %s", src)
	}
	return qs, nil
}

// ParseText extracts numbered questions from plain text such as
// "12. Which CPT code describes ... A. 11400 B. 11600 C. 17000 D. 69210".
// Options may be written "A." "A)" or "(A)", inline or on their own lines.
// Blocks without at least two options in A, B, ... order are skipped.
func ParseText(text string) []model.Question {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	starts := questionStart.FindAllStringSubmatchIndex(text, -1)

	var qs []model.Question
	for i, m := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		num, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		q, ok := parseBlock(num, text[m[1]:end])
		if ok {
			qs = append(qs, q)
		}
	}
	return qs
}

// parseBlock splits one question body into stem and options. Option markers
// are taken greedily in letter order so a stray "A." inside an option does
// not restart the list.
func parseBlock(num int, body string) (model.Question, bool) {
	markers := optionMarker.FindAllStringSubmatchIndex(body, -1)

	type span struct {
		letter     string
		start, end int
	}
	var picked []span
	want := byte('A')
	for _, m := range markers {
		letter := body[m[2]:m[3]]
		if letter[0] != want {
			continue
		}
		picked = append(picked, span{letter: letter, start: m[0], end: m[1]})
		want++
		if want > 'D' {
			break
		}
	}
	if len(picked) < 2 {
		return model.Question{}, false
	}

	q := model.Question{Number: num, Text: squash(body[:picked[0].start])}
	for i, p := range picked {
		end := len(body)
		if i+1 < len(picked) {
			end = picked[i+1].start
		}
		q.Options = append(q.Options, model.Option{Letter: p.letter, Text: squash(body[p.end:end])})
	}
	return q, q.Text != ""
}

func squash(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func validate(qs []model.Question) error {
	if len(qs) == 0 {
		return ErrNoQuestions
	}
	seen := make(map[int]bool, len(qs))
	for _, q := range qs {
		if q.Number <= 0 {
			return eris.Errorf("question number %d must be positive", q.Number)
		}
		if seen[q.Number] {
			return eris.Errorf("duplicate question number %d", q.Number)
		}
		seen[q.Number] = true
		if strings.TrimSpace(q.Text) == "" {
			return eris.Errorf("question %d has no text", q.Number)
		}
		if len(q.Options) < 2 {
			return eris.Errorf("question %d has %d options, need at least 2", q.Number, len(q.Options))
		}
		for _, o := range q.Options {
			if !model.IsValidChoice(o.Letter) {
				return eris.Errorf("question %d has invalid option letter %q", q.Number, o.Letter)
			}
		}
	}
	return nil
}

// WriteResults writes answered questions as indented JSON, ordered by number.
func WriteResults(path string, qs []model.Question) error {
	sorted := make([]model.Question, len(qs))
	copy(sorted, qs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return eris.Wrap(err, "exam: encode results")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "exam: write %s", path)
	}
	return nil
}
