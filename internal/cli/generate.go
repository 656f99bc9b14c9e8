package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"timed-quiz-service/internal/config"
	"timed-quiz-service/internal/generation"
)

// NewGenerateCmd prints one generated question set, for checking provider credentials and output.
func NewGenerateCmd(configPath *string) *cobra.Command {
	var topics []string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a question set for the given topics and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			generator, err := generation.NewGeneratorFromConfig(ctx, generationConfig(cfg))
			if err != nil {
				return err
			}
			questions, err := generator.GenerateQuestions(ctx, append(topics, args...))
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(map[string]any{"questions": questions}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "topic to quiz on (repeatable)")
	return cmd
}
