// Package main provides the infty CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/everydev1618/infty"
	"github.com/everydev1618/infty/llm"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var runsRoot string

	root := &cobra.Command{
		Use:           "infty",
		Short:         "Durable multi-role orchestration for long-running AI runs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&runsRoot, "runs-root", "", "override the default runs root (~/.infty)")

	root.AddCommand(newCreateCmd(&runsRoot))
	root.AddCommand(newListCmd(&runsRoot))
	root.AddCommand(newShowCmd(&runsRoot))
	return root
}

// resolveRunsRoot applies the --runs-root override or the default.
func resolveRunsRoot(flag string) string {
	if flag != "" {
		return flag
	}
	return infty.DefaultRunsRoot()
}

// openIndex opens the run catalog under the runs root.
func openIndex(runsRoot string) (*infty.RunIndex, error) {
	if err := os.MkdirAll(runsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create runs root: %w", err)
	}
	return infty.OpenRunIndex(filepath.Join(runsRoot, "runs.db"))
}

func newCreateCmd(runsRoot *string) *cobra.Command {
	var (
		runID          string
		objective      string
		timeoutSecs    uint64
		directorModel  string
		directorEffort string
		verifiers      int
		configPath     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new run store and spawn solver/director sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults, err := infty.LoadRunDefaults(configPath)
			if err != nil {
				return err
			}

			root := resolveRunsRoot(*runsRoot)
			index, err := openIndex(root)
			if err != nil {
				return err
			}
			defer index.Close()

			if runID == "" {
				runID = infty.NewRunID()
			}
			if directorModel == "" {
				directorModel = defaults.DirectorModel
			}
			if directorEffort == "" {
				directorEffort = defaults.DirectorEffort
			}
			if verifiers < 0 {
				return fmt.Errorf("--verifiers must be >= 0")
			}
			if !cmd.Flags().Changed("verifiers") && defaults.Verifiers > 0 {
				verifiers = defaults.Verifiers
			}

			baseModel := defaults.Model
			directorConfig := infty.Config{Model: firstNonEmpty(directorModel, baseModel)}
			if directorEffort != "" {
				effort, ok := llm.ParseReasoningEffort(directorEffort)
				if !ok {
					return fmt.Errorf("invalid reasoning effort: %s. Expected one of: minimal|low|medium|high", directorEffort)
				}
				directorConfig.ReasoningEffort = effort
			}

			params := infty.RunParams{
				RunID:    runID,
				Solver:   infty.NewRoleConfig("solver", infty.Config{Model: baseModel}),
				Director: infty.NewRoleConfig("director", directorConfig),
			}
			for i := 0; i < verifiers; i++ {
				params.Verifiers = append(params.Verifiers,
					infty.NewRoleConfig(infty.VerifierRoleName(i), infty.Config{Model: baseModel}))
			}

			options := infty.DefaultRunExecutionOptions()
			options.Objective = objective
			if cmd.Flags().Changed("timeout-secs") {
				options.DirectorTimeout = time.Duration(timeoutSecs) * time.Second
			} else {
				options.DirectorTimeout = defaults.DirectorTimeout()
			}
			options.VerifierTimeout = defaults.VerifierTimeout()

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			orch := infty.NewOrchestrator(
				infty.WithRunsRoot(root),
				infty.WithBackend(llm.NewAnthropic()),
				infty.WithRunIndex(index),
				infty.WithLogger(logger),
				infty.WithProgress(newLogProgress(logger)),
			)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			started := time.Now()
			outcome, err := orch.ExecuteNewRun(ctx, params, options)
			if err != nil {
				return err
			}
			if outcome == nil {
				fmt.Printf("run %s created under %s\n", runID, filepath.Join(root, runID))
				return nil
			}

			printRunSummaryBox(os.Stdout, runSummary{
				RunID:           outcome.RunID,
				RunPath:         filepath.Join(root, runID),
				Objective:       objective,
				DeliverablePath: outcome.DeliverablePath,
				Summary:         outcome.Summary,
				Duration:        time.Since(started),
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "explicit run id (default: timestamp-derived)")
	cmd.Flags().StringVar(&objective, "objective", "", "objective to send to the solver immediately after creation")
	cmd.Flags().Uint64Var(&timeoutSecs, "timeout-secs", 1200, "idle timeout in seconds when waiting for solver/director replies")
	cmd.Flags().StringVar(&directorModel, "director-model", "", "override only the director's model")
	cmd.Flags().StringVar(&directorEffort, "director-effort", "", "override only the director's reasoning effort (minimal|low|medium|high)")
	cmd.Flags().IntVar(&verifiers, "verifiers", 0, "number of verifier roles to spawn")
	cmd.Flags().StringVar(&configPath, "config", "infty.yaml", "run defaults file")
	return cmd
}

func newListCmd(runsRoot *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := openIndex(resolveRunsRoot(*runsRoot))
			if err != nil {
				return err
			}
			defer index.Close()

			records, err := index.List()
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(recordsJSON(records))
			}
			if len(records) == 0 {
				fmt.Println("no runs stored")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%-40s %-12s %s\n", rec.RunID, rec.Status, rec.CreatedAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON describing the stored runs")
	return cmd
}

func newShowCmd(runsRoot *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show metadata for a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := openIndex(resolveRunsRoot(*runsRoot))
			if err != nil {
				return err
			}
			defer index.Close()

			rec, err := index.Get(args[0])
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(recordJSON(rec))
			}
			fmt.Printf("Run ID:      %s\n", rec.RunID)
			fmt.Printf("Directory:   %s\n", rec.Root)
			fmt.Printf("Status:      %s\n", rec.Status)
			if rec.Objective != "" {
				fmt.Printf("Objective:   %s\n", rec.Objective)
			}
			if rec.DeliverablePath != "" {
				fmt.Printf("Deliverable: %s\n", rec.DeliverablePath)
			}
			if rec.Summary != "" {
				fmt.Printf("Summary:     %s\n", rec.Summary)
			}
			fmt.Printf("Created:     %s\n", rec.CreatedAt.Local().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON metadata instead of human-readable text")
	return cmd
}

// runRecordJSON is the stable JSON shape for list/show output.
type runRecordJSON struct {
	RunID           string `json:"run_id"`
	Root            string `json:"root"`
	Objective       string `json:"objective,omitempty"`
	Status          string `json:"status"`
	DeliverablePath string `json:"deliverable_path,omitempty"`
	Summary         string `json:"summary,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func recordJSON(rec infty.RunRecord) runRecordJSON {
	return runRecordJSON{
		RunID:           rec.RunID,
		Root:            rec.Root,
		Objective:       rec.Objective,
		Status:          string(rec.Status),
		DeliverablePath: rec.DeliverablePath,
		Summary:         rec.Summary,
		CreatedAt:       rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func recordsJSON(records []infty.RunRecord) []runRecordJSON {
	out := make([]runRecordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, recordJSON(rec))
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
