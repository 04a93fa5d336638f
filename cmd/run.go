package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/medcode-cli/internal/exam"
	"github.com/sells-group/medcode-cli/internal/model"
	"github.com/sells-group/medcode-cli/internal/pipeline"
	"github.com/sells-group/medcode-cli/internal/resilience"
)

var (
	runQuestions string
	runKey       string
	runOut       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Answer a question set and score it against an answer key",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		questions, err := exam.LoadQuestions(ctx, runQuestions)
		if err != nil {
			return err
		}
		var key model.AnswerKey
		if runKey != "" {
			if key, err = exam.LoadAnswerKey(ctx, runKey); err != nil {
				return err
			}
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		guard := resilience.GuardFromConfig(cfg)
		answerModel, err := buildAnswerModel(cfg, guard)
		if err != nil {
			return err
		}
		strategies, err := buildStrategies(cfg, guard)
		if err != nil {
			return err
		}
		cache := buildCache(cfg, st, guard)

		opts := []pipeline.Option{
			pipeline.WithBatchSize(cfg.Pipeline.BatchSize),
			pipeline.WithHistory(st),
		}
		if cfg.Pipeline.EnrichFailures {
			opts = append(opts, pipeline.WithEnricher(pipeline.NewEnricher(answerModel, cache)))
		}
		verifier := pipeline.NewVerifier(cfg.Pipeline.VerifyThreshold, strategies...)
		p := pipeline.New(cache, pipeline.NewAnswerer(answerModel), verifier, opts...)

		zap.L().Info("run: starting",
			zap.Int("questions", len(questions)),
			zap.Bool("keyed", key != nil),
			zap.String("answer_model", answerModel.Name()),
			zap.Strings("strategies", verifier.Strategies()),
		)

		res, err := p.Run(ctx, questions, key)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		if runOut != "" {
			if err := exam.WriteResults(runOut, res.Questions); err != nil {
				return err
			}
		}

		zap.L().Info("run: complete",
			zap.String("run_id", res.RunID),
			zap.Duration("duration", res.Duration),
			zap.Int("enriched", res.Enriched),
			zap.Any("breakers", breakerStates(guard)),
		)

		out := cmd.OutOrStdout()
		if res.Report == nil {
			fmt.Fprintf(out, "Answered %d questions (run %s); no answer key given.\n", len(res.Questions), res.RunID) //nolint:errcheck
			return nil
		}
		_, err = fmt.Fprint(out, pipeline.FormatReport(*res.Report, res.Questions))
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&runQuestions, "questions", "", "question set: .json, .yaml, or numbered text (path or URL, required)")
	runCmd.Flags().StringVar(&runKey, "key", "", "answer key: .json, .yaml, .csv, .xlsx, or text")
	runCmd.Flags().StringVar(&runOut, "out", "results.json", "write answered questions to this file (empty to skip)")
	_ = runCmd.MarkFlagRequired("questions")
	rootCmd.AddCommand(runCmd)
}
