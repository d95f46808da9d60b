package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsLimit int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recent request metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(context.Background())
		if err != nil {
			return err
		}
		defer a.close()

		if a.metrics == nil {
			return fmt.Errorf("metrics store is unavailable")
		}
		rows, err := a.metrics.Recent(statsLimit)
		if err != nil {
			return err
		}
		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
		if len(rows) == 0 {
			fmt.Println("No requests recorded yet.")
			return nil
		}

		fmt.Printf("%-17s %-9s %-9s %-10s %-7s %-6s %-9s %s\n",
			"TIME", "INTENT", "COMPLEX", "OPTIMIZER", "CACHED", "CONF", "LATENCY", "MODEL")
		for _, r := range rows {
			cached := ""
			if r.CacheHit {
				cached = "yes"
			}
			fmt.Printf("%-17s %-9s %-9s %-10s %-7s %-6.2f %-9s %s\n",
				r.Timestamp.Format("01-02 15:04:05"), r.Intent, r.Complexity,
				r.Optimizer, cached, r.Confidence, fmt.Sprintf("%dms", r.LatencyMS), r.Model)
		}
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show few-shot catalog information",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(context.Background())
		if err != nil {
			return err
		}
		defer a.close()

		source := a.cfg.Catalog.Path
		if source == "" {
			source = "embedded default corpus"
		}
		fmt.Printf("Catalog: %s\n", source)
		fmt.Printf("Examples indexed: %d\n", a.provider.Size())
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 20, "maximum rows to show")
}
