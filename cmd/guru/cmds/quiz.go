package cmds

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/guru/pkg/store"
)

func NewQuizCommand() *cobra.Command {
	var (
		questions  int
		difficulty string
	)

	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Generate a multiple choice quiz from your history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			if err := requireIdentity(s); err != nil {
				return err
			}

			resp, err := s.GenerateQuiz(cmd.Context(), store.QuizOptions{
				NumQuestions: questions,
				Difficulty:   difficulty,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for i, q := range resp.MCQs {
				_, _ = fmt.Fprintf(w, "%d. %s\n", i+1, q.Question)
				for j, o := range q.Options {
					_, _ = fmt.Fprintf(w, "   %c) %s\n", 'a'+j, o)
				}
				_, _ = fmt.Fprintf(w, "   answer: %s\n", q.Answer)
				if q.Explanation != "" {
					_, _ = fmt.Fprintf(w, "   %s\n", q.Explanation)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&questions, "questions", 5, "Number of questions (1-20)")
	cmd.Flags().StringVar(&difficulty, "difficulty", "medium", "Difficulty (easy, medium, hard)")
	return cmd
}
