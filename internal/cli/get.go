package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark-chris/threatc/internal/knowledge"
)

var getCmd = &cobra.Command{
	Use:   "get <template-id>",
	Short: "Get a specific threat template by ID",
	Long: `Retrieve detailed information about a specific threat template.

Examples:
  # Get template details (JSON)
  threatc get DB-001

  # Get template details (human-readable)
  threatc get DB-001 --verbose

  # Qualify an id that several component types share
  threatc get database/T-001`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	templateID := args[0]

	entry, ok := index.Get(templateID)
	if !ok {
		if matches := index.Matching(templateID); len(matches) > 1 {
			keys := make([]string, len(matches))
			for i, e := range matches {
				keys[i] = e.Key()
			}
			return fmt.Errorf("template id %s is defined for several component types, use one of: %s",
				templateID, strings.Join(keys, ", "))
		}
		return fmt.Errorf("template not found: %s", templateID)
	}

	output, err := knowledge.FormatEntryDetail(&entry, getFormat())
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	fmt.Println(output)
	return nil
}
