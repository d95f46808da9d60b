package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"promptforge/internal/llm"
	"promptforge/internal/types"
)

var (
	improveContext  string
	improvePreset   string
	improveMode     string
	improveModel    string
	improveFallback string
	improveTimeout  int
)

var improveCmd = &cobra.Command{
	Use:   "improve <idea>",
	Short: "Improve a rough prompt idea",
	Long: `Improve classifies the idea, retrieves the closest curated examples, and
runs the intent-matched optimizer to produce a structured prompt.

The result is cached by content: repeating the same idea with the same
preset, mode, and model returns instantly without another model call.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		req := types.ImproveRequest{
			Idea:          strings.Join(args, " "),
			Context:       improveContext,
			Preset:        types.ParsePreset(improvePreset),
			Mode:          types.ParseExecMode(improveMode),
			Model:         improveModel,
			FallbackModel: improveFallback,
			TimeoutMS:     improveTimeout,
		}

		result, err := a.improve(ctx, req)
		if err != nil {
			if hint := llm.HintFor(err.Error(), req.Mode); hint != "" {
				fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
			}
			return err
		}
		return printResult(result)
	},
}

func init() {
	improveCmd.Flags().StringVarP(&improveContext, "context", "c", "", "extra context for the idea")
	improveCmd.Flags().StringVarP(&improvePreset, "preset", "p", "", "output preset: default, specific, structured, coding")
	improveCmd.Flags().StringVarP(&improveMode, "mode", "m", "", "execution mode: local, remote, hybrid")
	improveCmd.Flags().StringVar(&improveModel, "model", "", "override the configured model")
	improveCmd.Flags().StringVar(&improveFallback, "fallback-model", "", "override the configured fallback model")
	improveCmd.Flags().IntVar(&improveTimeout, "timeout-ms", 0, "override the per-request deadline")
}

// printResult renders a result as JSON or human-readable text.
func printResult(result types.ImprovementResult) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Println(result.ImprovedPrompt)
	if len(result.ClarifyingQuestions) > 0 {
		fmt.Println("\nQuestions to consider:")
		for _, q := range result.ClarifyingQuestions {
			fmt.Printf("  - %s\n", q)
		}
	}
	if len(result.Assumptions) > 0 {
		fmt.Println("\nAssumptions made:")
		for _, s := range result.Assumptions {
			fmt.Printf("  - %s\n", s)
		}
	}
	fmt.Printf("\nconfidence=%.2f model=%s attempt=%d latency=%dms",
		result.Confidence, result.Meta.Model, result.Meta.Attempt, result.Meta.LatencyMS)
	if result.Meta.CacheHit {
		fmt.Print(" (cached)")
	}
	if result.Meta.Optimizer != "" {
		fmt.Printf(" optimizer=%s", result.Meta.Optimizer)
	}
	if result.Meta.LowConfidence {
		fmt.Print("\nNote: the model reported low confidence; consider adding context with -c.")
	}
	fmt.Println()
	return nil
}
