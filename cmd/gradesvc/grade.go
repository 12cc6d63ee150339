package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oscarlaird/gmath/internal/grading"
)

type gradeOutput struct {
	IsCorrect  bool   `json:"isCorrect"`
	Tier       string `json:"tier"`
	DurationMs int64  `json:"durationMs"`
}

func newGradeCmd(c *cli) *cobra.Command {
	var (
		user       string
		correct    string
		numeric    bool
		acceptable []string
	)
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade one answer and print the verdict as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref := grading.TextAnswer(correct)
			if numeric {
				f, err := strconv.ParseFloat(correct, 64)
				if err != nil {
					return fmt.Errorf("--correct is not a number: %w", err)
				}
				ref = grading.NumberAnswer(f)
			}

			a := &app{}
			defer a.close()
			if err := a.buildGrader(cmd.Context(), c.cfg); err != nil {
				return err
			}

			res, err := a.grader.Grade(cmd.Context(), grading.Request{
				UserAnswer:        user,
				CorrectAnswer:     ref,
				AcceptableAnswers: acceptable,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(gradeOutput{
				IsCorrect:  res.IsCorrect,
				Tier:       string(res.Tier),
				DurationMs: res.Elapsed.Milliseconds(),
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "student answer")
	cmd.Flags().StringVar(&correct, "correct", "", "reference answer")
	cmd.Flags().BoolVar(&numeric, "numeric", false, "treat the reference as a number")
	cmd.Flags().StringSliceVar(&acceptable, "acceptable", nil, "comma separated acceptable alternatives")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("correct")
	return cmd
}
