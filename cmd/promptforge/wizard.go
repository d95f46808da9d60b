package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"promptforge/internal/classify"
	"promptforge/internal/config"
	"promptforge/internal/types"
	"promptforge/internal/wizard"
)

var (
	wizardPreset string
	wizardMode   string
)

var wizardCmd = &cobra.Command{
	Use:   "wizard <idea>",
	Short: "Interactively refine an ambiguous idea before improving it",
	Long: `Wizard runs the improvement loop conversationally. When the idea is
ambiguous (generate intent, high complexity, or low classifier confidence)
it asks clarifying questions one turn at a time, folding each answer back
into the request, until the idea resolves or the turn budget runs out.

Clear ideas bypass the conversation and are improved directly.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		return runWizard(ctx, a, strings.Join(args, " "))
	},
}

func init() {
	wizardCmd.Flags().StringVarP(&wizardPreset, "preset", "p", "", "output preset: default, specific, structured, coding")
	wizardCmd.Flags().StringVar(&wizardMode, "wizard-mode", "", "override the wizard mode: off, auto, always")
}

func runWizard(ctx context.Context, a *app, idea string) error {
	preset := types.ParsePreset(wizardPreset)
	mode := a.cfg.Wizard.Mode
	if wizardMode != "" {
		mode = wizardMode
	}

	intent := classify.NewClassifier().Classify(idea)
	complexity := classify.NewAnalyzer().Analyze(idea)
	analysis := types.AnalyzedRequest{
		ImproveRequest: types.ImproveRequest{Idea: idea, Preset: preset},
		Intent:         intent.Intent,
		Complexity:     complexity.Level,
		Confidence:     intent.Confidence,
	}

	session, err := a.sessions.Create(idea, preset, types.EngineOllama, analysis,
		mode, a.cfg.Wizard.MaxTurns, a.cfg.Wizard.TimeoutPerTurnMS)
	if err != nil {
		return err
	}

	// A wizard session can outlive a config edit; pick up rule-set and model
	// changes between turns.
	if w, werr := config.NewWatcher(a.reload); werr == nil {
		defer w.Close()
	} else {
		logger.Warn(fmt.Sprintf("Config watcher unavailable: %v", werr))
	}

	req := types.ImproveRequest{Idea: idea, Preset: preset}
	reader := bufio.NewReader(os.Stdin)
	var answers []string

	for {
		result, err := a.improve(ctx, req)
		if err != nil {
			return err
		}

		// A resolved session, an unambiguous result, or an exhausted turn
		// budget ends the conversation.
		if session.State.Resolved || len(result.ClarifyingQuestions) == 0 {
			return finishWizard(a, session.ID, result)
		}

		question := result.ClarifyingQuestions[0]
		session, err = a.sessions.AppendAssistantMessage(session.ID, question,
			wizard.TurnMeta{Confidence: result.Confidence, IsAmbiguous: true})
		if err != nil {
			return err
		}

		fmt.Printf("\n%s\n", question)
		if session.State.CanOfferSkip {
			fmt.Println("(press Enter to skip and improve with what we have)")
		}
		fmt.Print("> ")
		answer, readErr := reader.ReadString('\n')
		if readErr != nil {
			return finishWizard(a, session.ID, result)
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return finishWizard(a, session.ID, result)
		}

		session, err = a.sessions.AppendUserMessage(session.ID, answer)
		if err != nil {
			return err
		}
		answers = append(answers, answer)
		req.Context = strings.Join(answers, "\n")
	}
}

// finishWizard records the final prompt on the session and prints the result.
func finishWizard(a *app, sessionID string, result types.ImprovementResult) error {
	_, err := a.sessions.AppendAssistantMessage(sessionID, result.ImprovedPrompt,
		wizard.TurnMeta{Confidence: result.Confidence, IsAmbiguous: false})
	if err == nil {
		_, err = a.sessions.CompleteWizard(sessionID)
	}
	if err != nil {
		logger.Warn(fmt.Sprintf("Failed to finalize wizard session: %v", err))
	}
	return printResult(result)
}
