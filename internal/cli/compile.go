package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mark-chris/threatc/internal/compiler"
	"github.com/mark-chris/threatc/internal/report"
	"github.com/mark-chris/threatc/internal/store"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

var (
	compileDescription   string
	compileFile          string
	compileSupplementary string
	compileTranscript    string
	compileAnswers       string
	compileName          string
	compilePrior         string
	compileOutput        string
	compileSave          bool
)

var compileCmd = &cobra.Command{
	Use:   "compile [description]",
	Short: "Compile a threat model from a system description",
	Long: `Compile a threat model: detect components, seed threats from the knowledge
base, enumerate STRIDE threats, score them with DREAD, build an attack tree,
generate security test cases and attach mitigations.

Without a configured model provider the model is compiled from the knowledge
base alone and the model-driven stages are reported as failed or degraded.

Examples:
  # Compile from an inline description
  threatc compile -d "web app with login form, MySQL backend, exposed to internet"

  # Read the description from a file and mine a meeting transcript
  threatc compile --file architecture.md --transcript kickoff.txt

  # Answer the open questions of a saved model and compile again
  threatc compile --file architecture.md --answers answers.yaml --prior 6f1c...

  # Keep the result and reuse its threat ids on the next run
  threatc compile --file architecture.md --save
  threatc compile --file architecture.md --prior 6f1c... --save`,
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVarP(&compileDescription, "description", "d", "",
		"System description")
	compileCmd.Flags().StringVar(&compileFile, "file", "",
		"Read the description from a file ('-' for stdin)")
	compileCmd.Flags().StringVar(&compileSupplementary, "supplementary", "",
		"Additional architecture notes")
	compileCmd.Flags().StringVar(&compileTranscript, "transcript", "",
		"Path to a meeting transcript to mine for application context")
	compileCmd.Flags().StringVar(&compileAnswers, "answers", "",
		"Path to a YAML list of {question, answer} pairs answering open questions")
	compileCmd.Flags().StringVar(&compileName, "name", "",
		"Application name shown in the report")
	compileCmd.Flags().StringVar(&compilePrior, "prior", "",
		"Id of a saved model whose threat ids are kept")
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "",
		"Write the report to a file instead of stdout")
	compileCmd.Flags().BoolVar(&compileSave, "save", false,
		"Save the model to the configured store")
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	req := compiler.Request{
		Description:   compileDescription,
		Supplementary: compileSupplementary,
		Application:   threatmodel.Application{Name: compileName},
	}
	if req.Description == "" && compileFile != "" {
		text, err := readInput(compileFile)
		if err != nil {
			return err
		}
		req.Description = text
	}
	if req.Description == "" {
		req.Description = strings.Join(args, " ")
	}
	if strings.TrimSpace(req.Description) == "" {
		return fmt.Errorf("a description is required: use --description, --file or pass it as arguments")
	}
	if compileTranscript != "" {
		text, err := readInput(compileTranscript)
		if err != nil {
			return err
		}
		req.Transcript = text
	}
	if compileAnswers != "" {
		answers, err := readAnswers(compileAnswers)
		if err != nil {
			return err
		}
		req.Answers = answers
	}

	format, err := getReportFormat()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var history store.Store
	if compileSave || compilePrior != "" {
		if history, err = openHistory(ctx); err != nil {
			return err
		}
		defer history.Close()
	}
	if compilePrior != "" {
		if req.Prior, err = history.Get(ctx, compilePrior); err != nil {
			return fmt.Errorf("failed to load prior model %s: %w", compilePrior, err)
		}
	}

	var opts []compiler.Option
	if verbose {
		opts = append(opts, compiler.WithObserver(printStage))
	}
	comp, err := newCompiler(opts...)
	if err != nil {
		return err
	}

	model, err := comp.Compile(ctx, req)
	var ce *threatmodel.CompilationError
	if errors.As(err, &ce) {
		return fmt.Errorf("compilation failed at stage %s: %w", ce.Stage, ce.Err)
	}

	if compileSave && model != nil {
		if serr := history.Save(context.WithoutCancel(ctx), model); serr != nil {
			return fmt.Errorf("failed to save model: %w", serr)
		}
		fmt.Fprintf(os.Stderr, "saved model %s\n", model.ID)
	}

	if model != nil {
		if werr := writeReport(model, format, compileOutput); werr != nil {
			return werr
		}
	}
	return err
}

// printStage reports compilation progress on stderr
func printStage(ev compiler.Event) {
	line := fmt.Sprintf("%-12s %s", ev.Stage, ev.Status)
	if ev.Error != "" {
		line += ": " + ev.Error
	}
	fmt.Fprintln(os.Stderr, line)
	for _, w := range ev.Warnings {
		fmt.Fprintf(os.Stderr, "             warning: %s\n", w)
	}
}

func writeReport(m *threatmodel.ThreatModel, format report.Format, path string) error {
	out, err := report.Render(m, format)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if path == "" {
		fmt.Println(out)
		return nil
	}
	// #nosec G306 -- reports are meant to be shared
	if err := os.WriteFile(path, []byte(out+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// readAnswers loads question and answer pairs from YAML (JSON is accepted too)
func readAnswers(path string) ([]threatmodel.Answer, error) {
	text, err := readInput(path)
	if err != nil {
		return nil, err
	}
	var answers []threatmodel.Answer
	if err := yaml.Unmarshal([]byte(text), &answers); err != nil {
		return nil, fmt.Errorf("failed to parse answers %s: %w", path, err)
	}
	return answers, nil
}
