package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect saved threat models",
	Long: `List, show and delete threat models saved with compile --save.

Examples:
  threatc history list --limit 5
  threatc history get 6f1c... --format markdown
  threatc history delete 6f1c...`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved models, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyGetCmd = &cobra.Command{
	Use:   "get <model-id>",
	Short: "Print a saved model",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryGet,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <model-id>",
	Short: "Delete a saved model",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20,
		"Maximum number of models to list (0 for all)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyGetCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	history, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer history.Close()

	records, err := history.List(ctx, historyLimit)
	if err != nil {
		return err
	}

	if getFormat() == "json" {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(records) == 0 {
		fmt.Println("No saved models")
		return nil
	}
	for _, r := range records {
		status := "complete"
		if !r.Complete {
			status = "partial"
		}
		name := r.Application
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("%s  %s  %-9s %3d threat(s)  %s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), status, r.ThreatCount, name)
	}
	return nil
}

func runHistoryGet(cmd *cobra.Command, args []string) error {
	format, err := getReportFormat()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	history, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer history.Close()

	model, err := history.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load model %s: %w", args[0], err)
	}
	return writeReport(model, format, "")
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	history, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer history.Close()

	if err := history.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to delete model %s: %w", args[0], err)
	}
	fmt.Printf("Deleted model %s\n", args[0])
	return nil
}
