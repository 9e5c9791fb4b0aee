package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mark-chris/threatc/internal/knowledge"
)

var (
	queryContext       string
	queryComponentType string
	queryCategory      string
	queryLimit         int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query threat templates by context",
	Long: `Query the knowledge base for threat templates relevant to what you are building.

Returns structured, actionable security context optimized for AI agent consumption.
Use --verbose for human-readable detailed output.

Examples:
  # Query by context
  threatc query --context "login form with password reset"

  # Restrict to a component type or STRIDE category
  threatc query --context "injection" --component database
  threatc query --component cache --category "Information Disclosure"

  # Get verbose human-readable output
  threatc query --context "file upload processing" --verbose

  # Limit results
  threatc query --context "authentication" --limit 5`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryContext, "context", "c", "",
		"What you're implementing (e.g., 'login form', 'message consumer')")
	queryCmd.Flags().StringVar(&queryComponentType, "component", "",
		"Component type filter (e.g., database, auth_service)")
	queryCmd.Flags().StringVar(&queryCategory, "category", "",
		"STRIDE category filter (e.g., Tampering)")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0,
		"Maximum number of templates to return (default: 3 for agent, 10 for verbose)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	verbosity := "agent"
	if verbose {
		verbosity = "human"
	}

	result := knowledge.Query(index, knowledge.QueryOptions{
		Context:       queryContext,
		ComponentType: queryComponentType,
		Category:      queryCategory,
		Limit:         queryLimit,
		Verbosity:     verbosity,
	})

	output, err := knowledge.FormatOutput(result, getFormat())
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	fmt.Println(output)
	return nil
}
