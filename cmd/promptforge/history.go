package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect saved prompt history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent improved prompts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(context.Background())
		if err != nil {
			return err
		}
		defer a.close()

		entries := a.history.List(historyLimit)
		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No history yet.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %s  %s\n", e.ID, e.Timestamp.Format("2006-01-02 15:04"), firstLine(e.Prompt))
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one saved prompt in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(context.Background())
		if err != nil {
			return err
		}
		defer a.close()

		entry, ok := a.history.GetByID(args[0])
		if !ok {
			return fmt.Errorf("no history entry with id %s", args[0])
		}
		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entry)
		}
		fmt.Println(entry.Prompt)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all saved history",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(context.Background())
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.history.Clear(); err != nil {
			return err
		}
		fmt.Println("History cleared.")
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum entries to list")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

// firstLine truncates a prompt to a one-line preview.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 72 {
		s = s[:69] + "..."
	}
	return s
}
