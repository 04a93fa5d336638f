package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/medcode-cli/internal/exam"
	"github.com/sells-group/medcode-cli/internal/model"
	"github.com/sells-group/medcode-cli/internal/pipeline"
	"github.com/sells-group/medcode-cli/internal/store"
)

var (
	scoreAnswers string
	scoreKey     string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a results file or bare answer list against an answer key",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("score"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		questions, report, err := scoreFiles(ctx, st, scoreAnswers, scoreKey)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), pipeline.FormatReport(report, questions))
		return err
	},
}

// scoreFiles scores answers against key and appends the performance log.
func scoreFiles(ctx context.Context, st store.Store, answersPath, keyPath string) ([]model.Question, model.ScoreReport, error) {
	questions, err := loadAnswers(ctx, answersPath)
	if err != nil {
		return nil, model.ScoreReport{}, err
	}
	key, err := exam.LoadAnswerKey(ctx, keyPath)
	if err != nil {
		return nil, model.ScoreReport{}, err
	}

	report := pipeline.Score(questions, key)
	report.Log.RunID = uuid.NewString()
	if err := st.AppendPerformanceLog(ctx, report.Log); err != nil {
		zap.L().Warn("score: append performance log failed", zap.Error(err))
	}
	return questions, report, nil
}

// loadAnswers reads a results file written by run, or failing that a bare
// number-to-letter list in any answer key format.
func loadAnswers(ctx context.Context, path string) ([]model.Question, error) {
	questions, qerr := exam.LoadQuestions(ctx, path)
	if qerr == nil {
		return questions, nil
	}
	answers, kerr := exam.LoadAnswerKey(ctx, path)
	if kerr != nil {
		return nil, eris.Wrapf(kerr, "read answers %s (not a results file: %v)", path, qerr)
	}
	return pipeline.Submissions(answers), nil
}

func init() {
	scoreCmd.Flags().StringVar(&scoreAnswers, "answers", "", "results file from run, or a number-to-letter answer list (required)")
	scoreCmd.Flags().StringVar(&scoreKey, "key", "", "answer key (required)")
	_ = scoreCmd.MarkFlagRequired("answers")
	_ = scoreCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(scoreCmd)
}
