package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mark-chris/threatc/internal/compiler"
)

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <model-id> <section>",
	Short: "Rebuild one section of a saved threat model",
	Long: `Rebuild one section of a saved model and save the result under the same id.
Sections: dread, attack_tree, test_cases, mitigations, architecture, questions.
Regenerating dread also refreshes the sections that depend on the scores.

Examples:
  threatc regenerate 6f1c... attack_tree
  threatc regenerate 6f1c... dread --format text`,
	Args: cobra.ExactArgs(2),
	RunE: runRegenerate,
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	section, err := compiler.ParseSection(args[1])
	if err != nil {
		return err
	}
	format, err := getReportFormat()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	history, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer history.Close()

	model, err := history.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load model %s: %w", args[0], err)
	}

	var opts []compiler.Option
	if verbose {
		opts = append(opts, compiler.WithObserver(printStage))
	}
	comp, err := newCompiler(opts...)
	if err != nil {
		return err
	}

	updated, err := comp.Regenerate(ctx, model, section)
	if err != nil {
		return err
	}
	if err := history.Save(context.WithoutCancel(ctx), updated); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	fmt.Fprintf(os.Stderr, "regenerated %s of model %s\n", section, updated.ID)
	return writeReport(updated, format, "")
}
