package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all threat templates",
	Long: `List all threat templates in the knowledge base, grouped by component type.

Examples:
  # List all templates
  threatc list

  # List with verbose output
  threatc list --verbose`,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	if index.Count() == 0 {
		fmt.Println("No templates found")
		return nil
	}

	fmt.Printf("Found %d template(s) for %d component type(s):\n\n", index.Count(), len(index.AllTypes()))

	for _, ct := range index.AllTypes() {
		entries := index.Lookup(ct)
		if len(entries) == 0 {
			continue
		}
		fmt.Printf("%s\n", ct)
		for _, e := range entries {
			if verbose {
				fmt.Printf("  [%s] %s\n", e.TemplateID, e.Name)
				fmt.Printf("    Category: %s | Severity: %s\n", e.Category, e.Severity)
				if len(e.Mitigations) > 0 {
					fmt.Printf("    Fix:      %s\n", e.Mitigations[0])
				}
				fmt.Printf("    Source:   %s\n", e.Source)
			} else {
				fmt.Printf("  %-10s %-24s %s\n", e.TemplateID, fmt.Sprintf("[%s/%s]", e.Severity, shortCategory(string(e.Category))), e.Name)
			}
		}
		fmt.Println()
	}

	return nil
}

// shortCategory abbreviates a STRIDE category to its initials
func shortCategory(c string) string {
	var sb strings.Builder
	for _, w := range strings.Fields(c) {
		if w == "of" {
			continue
		}
		sb.WriteByte(w[0])
	}
	return sb.String()
}
