package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/medcode-cli/internal/model"
)

// FormatReport renders a score report as markdown.
func FormatReport(report model.ScoreReport, questions []model.Question) string {
	var b strings.Builder
	l := report.Log

	b.WriteString("# Exam Report\n")
	if l.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", l.RunID)
	}
	fmt.Fprintf(&b, "Scored: %s\n\n", l.CreatedAt.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Overall: %d/%d (%d%%)\n", l.Overall.Correct, l.Overall.Total, l.Overall.Accuracy)
	fmt.Fprintf(&b, "- Verified: %d\n", l.Verified)
	fmt.Fprintf(&b, "- Unverified after escalation: %d\n", l.Unverified)
	fmt.Fprintf(&b, "- Default answers: %d\n", l.Defaulted)
	if l.Unkeyed > 0 {
		fmt.Fprintf(&b, "- Not in key: %d\n", l.Unkeyed)
	}
	b.WriteString("\n")

	b.WriteString("## By Family\n")
	b.WriteString("| Family | Correct | Total | Accuracy |\n|---|---|---|---|\n")
	for _, f := range model.AllFamilies {
		s := l.ByFamily[f]
		fmt.Fprintf(&b, "| %s | %d | %d | %d%% |\n", f, s.Correct, s.Total, s.Accuracy)
	}
	b.WriteString("\n")

	b.WriteString("## By Model\n")
	if len(l.ByModel) == 0 {
		b.WriteString("No answered questions.\n\n")
	} else {
		names := make([]string, 0, len(l.ByModel))
		for m := range l.ByModel {
			names = append(names, m)
		}
		sort.Strings(names)
		b.WriteString("| Model | Correct | Total | Accuracy |\n|---|---|---|---|\n")
		for _, m := range names {
			s := l.ByModel[m]
			fmt.Fprintf(&b, "| %s | %d | %d | %d%% |\n", m, s.Correct, s.Total, s.Accuracy)
		}
		b.WriteString("\n")
	}

	byNumber := make(map[int]*model.Question, len(questions))
	for i := range questions {
		byNumber[questions[i].Number] = &questions[i]
	}

	b.WriteString("## Incorrect\n")
	missed := 0
	for _, r := range report.Results {
		if r.IsCorrect {
			continue
		}
		missed++
		submitted := r.Submitted
		if submitted == "" {
			submitted = "-"
		}
		fmt.Fprintf(&b, "- Q%d: submitted %s, correct %s", r.Number, submitted, r.Correct)
		if q, ok := byNumber[r.Number]; ok {
			fmt.Fprintf(&b, " [%s]", q.Family)
			if v := q.Verified; v != nil {
				fmt.Fprintf(&b, " (verified by %s)", v.Strategy)
			} else if q.Answer != nil && q.Answer.Fallback {
				b.WriteString(" (default answer)")
			}
		} else {
			b.WriteString(" (not submitted)")
		}
		b.WriteString("\n")
	}
	if missed == 0 {
		b.WriteString("None.\n")
	}
	return b.String()
}

// FormatHistory renders performance logs one line each.
func FormatHistory(logs []model.PerformanceLog) string {
	if len(logs) == 0 {
		return "No performance history.\n"
	}
	var b strings.Builder
	for _, l := range logs {
		fmt.Fprintf(&b, "%s  %s  %d/%d (%d%%)", l.CreatedAt.Format("2006-01-02 15:04"), l.RunID, l.Overall.Correct, l.Overall.Total, l.Overall.Accuracy)
		for _, f := range model.AllFamilies {
			if s := l.ByFamily[f]; s.Total > 0 {
				fmt.Fprintf(&b, "  %s %d%%", f, s.Accuracy)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
