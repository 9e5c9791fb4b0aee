// Package cli implements the threatc command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/mark-chris/threatc/internal/config"
	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/logging"
	"github.com/mark-chris/threatc/internal/report"
)

var (
	// Global flags
	cfgFile      string
	knowledgeDir string
	outputFormat string
	logLevel     string
	verbose      bool

	// Shared resources
	cfg        *config.Config
	logger     *zap.Logger
	index      *knowledge.Index
	loadResult *knowledge.LoadResult
)

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "threatc",
	Short: "Threat model compiler",
	Long: `threatc compiles a free-text system description into a threat model:
detected components, STRIDE threats, DREAD scores, an attack tree, security
test cases and mitigations, grounded in a curated threat knowledge base.

Examples:
  # Compile a model and print a markdown report
  threatc compile -d "web app with login form, MySQL backend, exposed to internet"

  # Query the knowledge base
  threatc query --context "login form credential attacks"

  # Show the templates for one component type
  threatc component database --verbose

  # Serve the HTTP API, or the MCP tools on stdio
  threatc serve --addr :8080
  threatc mcp`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
			return nil
		}
		return initialize()
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file (default ./"+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().StringVarP(&knowledgeDir, "knowledge", "k", "",
		"Path to the knowledge base directory")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "",
		"Output format: json or text; compile and history also accept markdown, mermaid and dfd")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Human-readable verbose output")

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(componentCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

// initialize resolves configuration, builds the logger and loads the knowledge base
func initialize() error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if knowledgeDir != "" {
		c.KnowledgeDir = knowledgeDir
	} else if !isDir(c.KnowledgeDir) {
		c.KnowledgeDir = findKnowledgeDir(c.KnowledgeDir)
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}

	l, err := logging.New(c.Log.Level, c.Log.Format)
	if err != nil {
		return err
	}

	idx, res, err := knowledge.Open(c.KnowledgeDir, l)
	if err != nil {
		return fmt.Errorf("failed to load knowledge base: %w", err)
	}

	cfg, logger, index, loadResult = c, l, idx, res
	return nil
}

// findKnowledgeDir looks for an installed knowledge base when the configured
// one does not exist
func findKnowledgeDir(configured string) string {
	candidates := []string{
		filepath.Join(os.Getenv("HOME"), ".threatc", "knowledge"),
		"/usr/local/share/threatc/knowledge",
	}

	for _, dir := range candidates {
		if isDir(dir) {
			return dir
		}
	}
	return configured
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// getFormat returns the knowledge output format based on flags
func getFormat() knowledge.OutputFormat {
	if outputFormat == "text" || verbose {
		return knowledge.FormatText
	}
	return knowledge.FormatJSON
}

// getReportFormat returns the threat model report format. Without a flag a
// terminal gets markdown and a pipe gets JSON.
func getReportFormat() (report.Format, error) {
	if outputFormat != "" {
		return report.ParseFormat(outputFormat)
	}
	if verbose || term.IsTerminal(int(os.Stdout.Fd())) {
		return report.FormatMarkdown, nil
	}
	return report.FormatJSON, nil
}
