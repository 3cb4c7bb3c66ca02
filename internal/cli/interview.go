package cli

import (
	"context"
	"strings"

	"missioncontrol/internal/common"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/types"

	"github.com/spf13/cobra"
)

var gradeCmd = &cobra.Command{
	Use:   "grade [question] [answer | @file]",
	Short: "Grade an interview answer",
	Long: `Ask the interviewer agent to grade an answer. Prints a score out of 10,
a verdict, strengths, weaknesses and an improved answer.`,
	Args: cobra.ExactArgs(2),
	RunE: runGrade,
}

var questionsCmd = &cobra.Command{
	Use:   "questions [resume-id] [job-description | @file]",
	Short: "Generate a fresh set of interview questions",
	Args:  cobra.ExactArgs(2),
	RunE:  runQuestions,
}

var (
	gradeConfig      common.CommandConfig
	gradeModelAnswer string
	gradeCategory    string

	questionsConfig common.CommandConfig
)

func init() {
	addOutputFlags(gradeCmd, &gradeConfig)
	gradeCmd.Flags().StringVar(&gradeModelAnswer, "model-answer", "", "Reference answer to grade against")
	gradeCmd.Flags().StringVar(&gradeCategory, "category", "", "technical, behavioral, situational, gap_probe or leadership")

	addOutputFlags(questionsCmd, &questionsConfig)
}

func runGrade(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	answer := args[1]
	if path, ok := strings.CutPrefix(answer, "@"); ok {
		content, err := common.NewFileProcessor(logger).ReadFile(path)
		if err != nil {
			return err
		}
		answer = content
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "answer is empty", nil)
	}

	client := newBackendClient(cfg, logger)
	return common.RunCommand(cmd.Context(), logger, newOutputHandler(logger), gradeConfig, "grade",
		func(ctx context.Context) (*types.GradeResult, error) {
			return client.Grade(ctx, types.GradeRequest{
				Question:    args[0],
				UserAnswer:  answer,
				ModelAnswer: gradeModelAnswer,
				Category:    gradeCategory,
			})
		},
		func(g *types.GradeResult) any { return *g },
	)
}

func runQuestions(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	jobDescription, err := common.NewFileProcessor(logger).ReadJobDescription(args[1])
	if err != nil {
		return err
	}

	client := newBackendClient(cfg, logger)
	panel := panels.NewInterviewPanel(nil, client)
	return common.RunCommand(cmd.Context(), logger, newOutputHandler(logger), questionsConfig, "questions",
		func(ctx context.Context) (panels.InterviewView, error) {
			err := panel.Regenerate(ctx, client, types.QuestionsRequest{
				ResumeID:       args[0],
				JobDescription: jobDescription,
			})
			return panel.View(), err
		},
		nil,
	)
}
