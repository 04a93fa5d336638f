package exam

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/medcode-cli/internal/model"
)

var keyLine = regexp.MustCompile(`(?m)^\s*(\d{1,4})\s*[.):\-]?\s*\(?([A-Da-d])\)?\s*$`)

// LoadAnswerKey reads an answer key mapping question number to the correct
// letter. Supported: ".json" object {"1": "B"}, ".yaml"/".yml" mapping,
// ".csv" and ".xlsx" two-column sheets (header row optional), and plain text
// lines like "1. B".
func LoadAnswerKey(ctx context.Context, src string) (model.AnswerKey, error) {
	data, err := readSource(ctx, src)
	if err != nil {
		return nil, err
	}

	var key model.AnswerKey
	switch ext(src) {
	case ".json":
		var raw map[string]string
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrapf(err, "exam: decode %s", src)
		}
		key, err = keyFromStrings(raw)
	case ".yaml", ".yml":
		var raw map[string]string
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrapf(err, "exam: decode %s", src)
		}
		key, err = keyFromStrings(raw)
	case ".csv":
		var rows [][]string
		rows, err = readCSV(data)
		if err == nil {
			key, err = keyFromRows(rows)
		}
	case ".xlsx":
		var rows [][]string
		rows, err = readXLSX(data, "")
		if err == nil {
			key, err = keyFromRows(rows)
		}
	default:
		key, err = keyFromText(string(data))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "exam: answer key %s", src)
	}
	if len(key) == 0 {
		return nil, eris.Errorf("exam: answer key %s is empty", src)
	}
	return key, nil
}

func keyFromStrings(raw map[string]string) (model.AnswerKey, error) {
	key := make(model.AnswerKey, len(raw))
	for k, v := range raw {
		if err := setAnswer(key, k, v); err != nil {
			return nil, err
		}
	}
	return key, nil
}

// keyFromRows reads (number, letter) pairs from the first two columns. A
// leading row whose first cell is not a number is treated as a header.
// Blank rows are skipped.
func keyFromRows(rows [][]string) (model.AnswerKey, error) {
	key := make(model.AnswerKey, len(rows))
	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		if len(row) < 2 {
			return nil, eris.Errorf("row %d: want number and answer columns", i+1)
		}
		if i == 0 {
			if _, err := strconv.Atoi(strings.TrimSpace(row[0])); err != nil {
				continue
			}
		}
		if err := setAnswer(key, row[0], row[1]); err != nil {
			return nil, eris.Wrapf(err, "row %d", i+1)
		}
	}
	return key, nil
}

func keyFromText(text string) (model.AnswerKey, error) {
	key := make(model.AnswerKey)
	for _, m := range keyLine.FindAllStringSubmatch(text, -1) {
		if err := setAnswer(key, m[1], m[2]); err != nil {
			return nil, err
		}
	}
	return key, nil
}

// setAnswer validates one key entry. Letters are upper-cased; duplicate
// numbers are rejected.
func setAnswer(key model.AnswerKey, num, letter string) error {
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n <= 0 {
		return eris.Errorf("invalid question number %q", num)
	}
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if !model.IsValidChoice(letter) {
		return eris.Errorf("question %d: invalid answer %q", n, letter)
	}
	if _, dup := key[n]; dup {
		return eris.Errorf("question %d: duplicate answer", n)
	}
	key[n] = letter
	return nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "csv: read rows")
	}
	return rows, nil
}
