package pipeline

import (
	"math"
	"time"

	"github.com/sells-group/medcode-cli/internal/model"
)

// Score compares each keyed question's final answer with the key. A keyed
// number with no submitted question, or one never answered, counts as
// incorrect. Stats are recomputed from scratch on every call; every family
// bucket is present and empty buckets report 0%.
func Score(questions []model.Question, key model.AnswerKey) model.ScoreReport {
	byNumber := make(map[int]*model.Question, len(questions))
	for i := range questions {
		byNumber[questions[i].Number] = &questions[i]
	}

	var overall tally
	families := make(map[model.Family]*tally, len(model.AllFamilies))
	for _, f := range model.AllFamilies {
		families[f] = &tally{}
	}
	models := make(map[string]*tally)

	log := model.PerformanceLog{CreatedAt: time.Now().UTC()}
	results := make([]model.TestResult, 0, len(key))

	for _, n := range key.Numbers() {
		correct := key[n]
		res := model.TestResult{Number: n, Correct: correct}

		q, ok := byNumber[n]
		if ok {
			res.Submitted = q.FinalChoice()
			res.Family = q.Family
			res.Verified = q.Verified != nil
			if a := q.Final(); a != nil {
				res.Model = a.Model
			}
		}
		res.IsCorrect = res.Submitted != "" && res.Submitted == correct
		results = append(results, res)

		overall.add(res.IsCorrect)
		if t, ok := families[res.Family]; ok {
			t.add(res.IsCorrect)
		}
		if res.Model != "" {
			if models[res.Model] == nil {
				models[res.Model] = &tally{}
			}
			models[res.Model].add(res.IsCorrect)
		}
	}

	for i := range questions {
		q := &questions[i]
		if _, keyed := key[q.Number]; !keyed {
			log.Unkeyed++
		}
		switch {
		case q.Verified != nil:
			log.Verified++
		case q.Escalated:
			log.Unverified++
		}
		if q.Answer != nil && q.Answer.Fallback {
			log.Defaulted++
		}
	}

	log.Overall = overall.stat()
	log.ByFamily = make(map[model.Family]model.Stat, len(families))
	for f, t := range families {
		log.ByFamily[f] = t.stat()
	}
	log.ByModel = make(map[string]model.Stat, len(models))
	for m, t := range models {
		log.ByModel[m] = t.stat()
	}

	return model.ScoreReport{Results: results, Log: log}
}

type tally struct {
	correct, total int
}

func (t *tally) add(correct bool) {
	t.total++
	if correct {
		t.correct++
	}
}

func (t *tally) stat() model.Stat {
	return model.Stat{Correct: t.correct, Total: t.total, Accuracy: Percent(t.correct, t.total)}
}

// Percent returns correct/total as a whole percentage rounded half away from
// zero, or 0 when total is 0.
func Percent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

// Submissions builds answered questions from a bare number-to-letter map, for
// scoring answers produced outside the pipeline.
func Submissions(answers map[int]string) []model.Question {
	qs := make([]model.Question, 0, len(answers))
	for _, n := range model.AnswerKey(answers).Numbers() {
		qs = append(qs, model.Question{Number: n, Answer: &model.AnswerRecord{Choice: answers[n]}})
	}
	return qs
}
