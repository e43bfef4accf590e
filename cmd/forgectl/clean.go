package main

import (
	"fmt"
	"slices"

	"github.com/fedutinova/narrator/internal/pipeline"
	"github.com/fedutinova/narrator/internal/textclean"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newCleanCmd() *cobra.Command {
	var (
		presetPath string
		outputPath string
		showSteps  bool
	)
	cmd := &cobra.Command{
		Use:   "clean [file]",
		Short: "Apply the rule-based cleaner only",
		Long: `Clean runs the deterministic cleaning rules selected in the preset
(smart quotes, URLs, footnotes, hyphenation, OCR word splits) and
writes the result. No language model is contacted.

Example:
  forgectl clean chapter.txt -o chapter.clean.txt
  cat chapter.txt | forgectl clean --steps`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pipeline.LoadPreset(presetPath)
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			res := textclean.Apply(text, cfg.Cleaning, textclean.PhasePre)
			if err := writeOutput(cmd, outputPath, res.Text); err != nil {
				return err
			}
			if showSteps {
				table := tablewriter.NewWriter(cmd.ErrOrStderr())
				table.Header("Step", "Applied")
				for _, step := range allSteps {
					table.Append(step, fmt.Sprintf("%t", slices.Contains(res.Applied, step)))
				}
				return table.Render()
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&presetPath, "preset", "p", "", "YAML pipeline preset")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the result to a file instead of stdout")
	cmd.Flags().BoolVar(&showSteps, "steps", false, "print which rules changed the text")
	return cmd
}

var allSteps = []string{
	textclean.StepSmartQuotes,
	textclean.StepURLs,
	textclean.StepFootnotes,
	textclean.StepHyphenation,
	textclean.StepCamelCase,
	textclean.StepMergedWords,
}
