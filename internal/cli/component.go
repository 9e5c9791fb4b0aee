package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/threatmodel"
)

var componentCmd = &cobra.Command{
	Use:   "component <type>",
	Short: "Show the guidance and templates for a component type",
	Long: `Show the security considerations, best practices, compliance notes and
threat templates for one component type. Aliases such as "db" or "auth" are
accepted.

Examples:
  threatc component database
  threatc component auth --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: runComponent,
}

func runComponent(cmd *cobra.Command, args []string) error {
	ct := threatmodel.NormalizeComponentType(args[0])
	entries := index.Lookup(ct)
	profile, ok := index.Profile(ct)
	if !ok && len(entries) == 0 {
		return fmt.Errorf("no knowledge for component type: %s", args[0])
	}
	profile.ComponentType = ct

	output, err := knowledge.FormatProfile(profile, entries, getFormat())
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	fmt.Println(output)
	return nil
}
