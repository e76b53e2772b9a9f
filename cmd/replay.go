package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"daq-trigger/internal/trigger/application"
	trigger "daq-trigger/internal/trigger/domain"
	"daq-trigger/internal/trigger/infrastructure/memory"
)

const (
	replayCandidates = "candidates"
	replayDecisions  = "decisions"
	replayBusy       = "busy"
)

var replayInputPath string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run one in-process run over a scripted list of candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := loadReplayInput(replayInputPath)
		if err != nil {
			return err
		}
		result, err := Replay(cmd.Context(), input, logrus.StandardLogger())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInputPath, "input", "", "YAML replay script")
	_ = replayCmd.MarkFlagRequired("input")
}

// ReplayStep is one scripted action. Exactly one of Candidate or Action is set.
// Actions are pause, resume, busy and idle.
type ReplayStep struct {
	Candidate *trigger.Candidate `yaml:"candidate"`
	Action    string             `yaml:"action"`
}

// ReplayInput is a replay script.
type ReplayInput struct {
	RunNumber   trigger.RunNumber      `yaml:"run_number"`
	StartPaused bool                   `yaml:"start_paused"`
	Trigger     application.ConfParams `yaml:"trigger"`
	Steps       []ReplayStep           `yaml:"steps"`
}

// ReplayResult is the outcome of a replay.
type ReplayResult struct {
	Summary   trigger.RunSummary `json:"summary"`
	Decisions []trigger.Decision `json:"decisions"`
}

func loadReplayInput(path string) (ReplayInput, error) {
	var input ReplayInput
	data, err := os.ReadFile(path)
	if err != nil {
		return input, err
	}
	if err := yaml.Unmarshal(data, &input); err != nil {
		return input, fmt.Errorf("replay input %s: %w", path, err)
	}
	return input, nil
}

// Replay runs input through an engine wired to in-process queues. Each step
// is fully processed before the next one is applied.
func Replay(ctx context.Context, input ReplayInput, logger logrus.FieldLogger) (ReplayResult, error) {
	capacity := len(input.Steps) + 1
	candidates, err := memory.NewQueue[trigger.Candidate](capacity)
	if err != nil {
		return ReplayResult{}, err
	}
	decisions, err := memory.NewQueue[trigger.Decision](capacity)
	if err != nil {
		return ReplayResult{}, err
	}
	inhibits := memory.NewInhibitFeed()
	registry := memory.NewRegistry()
	registry.AddCandidateQueue(replayCandidates, candidates)
	registry.AddDecisionQueue(replayDecisions, decisions)
	registry.AddInhibitFeed(replayBusy, inhibits)

	params := input.Trigger
	if len(params.Links) == 0 {
		params.Links = []application.LinkConf{{System: "TPC"}}
	}
	params.CandidateConnection = replayCandidates
	params.DecisionConnection = replayDecisions
	params.InhibitConnection = replayBusy
	if params.PollTimeoutMS == 0 {
		params.PollTimeoutMS = 5
	}
	if params.SendTimeoutMS == 0 {
		params.SendTimeoutMS = 100
	}

	engine, err := application.NewEngine(registry, application.WithLogger(logger))
	if err != nil {
		return ReplayResult{}, err
	}
	if err := engine.Configure(params); err != nil {
		return ReplayResult{}, err
	}
	if err := engine.Start(ctx, input.RunNumber); err != nil {
		return ReplayResult{}, err
	}
	if !input.StartPaused {
		if err := engine.Resume(ctx); err != nil {
			return ReplayResult{}, err
		}
	}

	var pushed uint64
	for i, step := range input.Steps {
		if err := applyStep(ctx, engine, candidates, inhibits, input.RunNumber, step, &pushed); err != nil {
			_ = engine.Stop(ctx)
			return ReplayResult{}, fmt.Errorf("step %d: %w", i, err)
		}
	}

	if err := engine.Stop(ctx); err != nil {
		return ReplayResult{}, err
	}
	summary, _ := engine.LastRun()
	sent := decisions.Drain()
	if sent == nil {
		sent = []trigger.Decision{}
	}
	return ReplayResult{Summary: summary, Decisions: sent}, nil
}

func applyStep(ctx context.Context, engine *application.Engine, candidates *memory.Queue[trigger.Candidate],
	inhibits *memory.InhibitFeed, run trigger.RunNumber, step ReplayStep, pushed *uint64) error {
	if step.Candidate != nil {
		if err := candidates.Send(ctx, *step.Candidate, time.Second); err != nil {
			return err
		}
		*pushed++
		return waitProcessed(ctx, engine, *pushed)
	}
	switch step.Action {
	case "pause":
		return engine.Pause(ctx)
	case "resume":
		return engine.Resume(ctx)
	case "busy":
		inhibits.Publish(ctx, trigger.Inhibit{RunNumber: run, Busy: true})
	case "idle":
		inhibits.Publish(ctx, trigger.Inhibit{RunNumber: run, Busy: false})
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

func waitProcessed(ctx context.Context, engine *application.Engine, total uint64) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for engine.Snapshot().DecisionsTotal < total {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
