package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [template-id]",
	Short: "Validate the knowledge base",
	Long: `Validate every knowledge base document and threat template against the
schema: required fields, known component types, STRIDE categories, severities
and impact scores. Invalid templates are skipped when the knowledge base loads;
this command lists them and exits non-zero.

Examples:
  # Validate everything
  threatc validate

  # Show the result for a single template
  threatc validate DB-001 --verbose`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	results := loadResult.Results
	if len(args) > 0 {
		results = results[:0:0]
		for _, r := range loadResult.Results {
			if r.EntryID == args[0] {
				results = append(results, r)
			}
		}
		if len(results) == 0 {
			return fmt.Errorf("template not found: %s", args[0])
		}
	}

	totalErrors := 0
	totalWarnings := 0

	for _, result := range results {
		totalErrors += len(result.Errors)
		totalWarnings += len(result.Warnings)

		if len(result.Errors) > 0 || len(result.Warnings) > 0 || verbose {
			status := "✓"
			if !result.IsValid {
				status = "✗"
			}
			fmt.Printf("%s %s/%s (%s)\n", status, result.ComponentType, result.EntryID, result.Source)

			for _, err := range result.Errors {
				fmt.Printf("  ERROR: %s - %s\n", err.Field, err.Message)
			}
			for _, warn := range result.Warnings {
				fmt.Printf("  WARN:  %s - %s\n", warn.Field, warn.Message)
			}
			if len(result.Errors) > 0 || len(result.Warnings) > 0 {
				fmt.Println()
			}
		}
	}

	// Document-level problems and duplicates are not tied to one validation result
	skipped := 0
	if len(args) == 0 {
		for _, e := range loadResult.Errors {
			if e.Entry != "" && isInvalidEntry(e.Source, e.Entry) {
				continue
			}
			skipped++
			fmt.Printf("✗ %s\n  ERROR: %v\n\n", e.Source, e)
		}
	}

	fmt.Printf("\nValidated %d template(s) in %d file(s): %d error(s), %d warning(s)\n",
		len(results), loadResult.Files, totalErrors+skipped, totalWarnings)

	if totalErrors+skipped > 0 {
		return fmt.Errorf("knowledge base has %d error(s)", totalErrors+skipped)
	}
	return nil
}

func isInvalidEntry(source, id string) bool {
	for _, r := range loadResult.Results {
		if r.Source == source && r.EntryID == id && !r.IsValid {
			return true
		}
	}
	return false
}
