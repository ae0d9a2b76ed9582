package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	orchestration "github.com/koscakluka/ema-panel/core"
	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/core/history"
	"github.com/koscakluka/ema-panel/internal/render/status"
	"github.com/spf13/cobra"
)

const transcriptWidth = 100

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Listen to the audience and let the panel talk (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPanel(cmd, opts)
		},
	}
}

func runPanel(cmd *cobra.Command, opts *rootOptions) error {
	app, err := wireApp(cmd, opts)
	if err != nil {
		return err
	}

	device, err := openAudio(app.cfg)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer device.Close()

	speech, err := newSpeechChain(app.cfg, app.secrets, app.registry, device.EncodingInfo())
	if err != nil {
		return err
	}

	listener := orchestration.NewCaptureListener(device, newTranscriptionClient(app.cfg, app.secrets))
	orchestrator := orchestration.NewOrchestrator(app.registry,
		orchestration.WithListener(listener),
		orchestration.WithResponseGenerator(app.llm),
		orchestration.WithSpeechSynthesizer(speech),
		orchestration.WithPlayer(device),
		orchestration.WithHistory(app.history),
		orchestration.WithTurnRules(app.cfg.TurnRules()),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := &syncWriter{w: cmd.OutOrStdout()}
	startedAt := time.Now()
	report := func(title string) {
		printStatistics(out, orchestrator, title, startedAt)
	}

	reporter, err := startStatsReporter(app.cfg.Stats.Schedule, func() { report("Panel Statistics") })
	if err != nil {
		return err
	}

	errOut := &syncWriter{w: cmd.ErrOrStderr()}
	err = orchestrator.Orchestrate(ctx, panelCallbacks(out, errOut, app.registry)...)
	if err != nil {
		reporter.Stop()
		_ = orchestrator.Close()
		return err
	}

	out.println(fmt.Sprintf("Listening with %d agents, press Ctrl+C to stop.", app.registry.Len()))
	<-ctx.Done()

	reporter.Stop()
	closeErr := orchestrator.Close()
	report("Final Statistics")
	if closeErr != nil {
		return fmt.Errorf("shut down panel: %w", closeErr)
	}
	return nil
}

// panelCallbacks prints the conversation to out and failed speak cycles to
// errOut. Contention and interruptions are part of normal turn-taking and are
// only logged.
func panelCallbacks(out, errOut *syncWriter, registry *agents.Registry) []orchestration.OrchestrateOption {
	displayName := func(agentID string) string {
		if agent, ok := registry.Agent(agentID); ok {
			return agent.DisplayName()
		}
		return agentID
	}

	return []orchestration.OrchestrateOption{
		orchestration.WithTranscriptionCallback(func(transcript string) {
			out.println(status.TranscriptLine(history.AudienceDisplayName, transcript, true, transcriptWidth))
		}),
		orchestration.WithResponseCallback(func(agentID, response string) {
			out.println(status.TranscriptLine(displayName(agentID), response, false, transcriptWidth))
		}),
		orchestration.WithTurnEndedCallback(func(speaker string, duration time.Duration) {
			logger.Debug("turn ended", "speaker", speaker, "duration", duration)
		}),
		orchestration.WithCycleResultCallback(func(result orchestration.CycleResult) {
			switch result.Kind {
			case orchestration.ErrorKindNone:
			case orchestration.ErrorKindContention, orchestration.ErrorKindCancelled:
				logger.Debug("speak cycle ended early", "agent_id", result.AgentID, "kind", result.Kind.String(), "error", result.Err)
			default:
				errOut.println(fmt.Sprintf("%s could not respond (%s): %v", displayName(result.AgentID), result.Kind, result.Err))
			}
		}),
	}
}

func printStatistics(out *syncWriter, orchestrator *orchestration.Orchestrator, title string, startedAt time.Time) {
	rendered, err := status.Render(orchestrator.Statistics(), orchestrator.Roster().Agents(), status.RenderOptions{
		Title: title,
		Now:   time.Now(),
		Since: startedAt,
	})
	if err != nil {
		logger.Warn("failed to render statistics", "error", err)
		return
	}
	out.println(rendered)
}

// syncWriter serialises lines written from the orchestrator's goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) println(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = fmt.Fprintln(w.w, line)
}
