// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pillumina/PaperFuse/internal/completion"
	"github.com/pillumina/PaperFuse/internal/ledger"
	"github.com/pillumina/PaperFuse/internal/metadata"
	"github.com/pillumina/PaperFuse/internal/pipeline"
	"github.com/pillumina/PaperFuse/internal/source"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [paper-id ...]",
	Short: "Analyze recent papers, or specific ids, at a chosen depth",
	Long: `Analyze runs the pipeline over papers. Without arguments it lists recent
papers from the configured categories over the lookback window; with
arguments it analyzes exactly the given arXiv ids.

Depths: basic reads the abstract only; standard downloads the source,
triages on the introduction and conclusion, and escalates high scorers to
a full-text detail pass; full sends the entire source text in one call.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("depth", "", "analysis depth: basic, standard, or full")
	analyzeCmd.Flags().Int("max-papers", 0, "cap on papers per run")
	analyzeCmd.Flags().Int("lookback-days", 0, "listing window in days")
	analyzeCmd.Flags().StringSlice("category", nil, "arXiv categories to list (e.g. cs.CL)")
	analyzeCmd.Flags().Bool("force", false, "reanalyze regardless of recorded depth")
	analyzeCmd.Flags().Int("min-score-to-save", 0, "discard standard-depth papers scoring below this")
	analyzeCmd.Flags().Int("detail-threshold", 0, "trigger the detail pass at or above this score")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if depth, _ := cmd.Flags().GetString("depth"); depth != "" {
		cfg.Pipeline.Depth = depth
	}
	if n, _ := cmd.Flags().GetInt("max-papers"); n > 0 {
		cfg.Pipeline.MaxPapers = n
	}
	if n, _ := cmd.Flags().GetInt("lookback-days"); n > 0 {
		cfg.Pipeline.LookbackDays = n
	}
	if cats, _ := cmd.Flags().GetStringSlice("category"); len(cats) > 0 {
		cfg.Pipeline.Categories = cats
	}
	if force, _ := cmd.Flags().GetBool("force"); force {
		cfg.Pipeline.Force = true
	}
	if n, _ := cmd.Flags().GetInt("min-score-to-save"); n > 0 {
		cfg.Pipeline.MinScoreToSave = n
	}
	if n, _ := cmd.Flags().GetInt("detail-threshold"); n > 0 {
		cfg.Pipeline.DetailThreshold = n
	}

	if len(args) == 0 && len(cfg.Pipeline.Categories) == 0 {
		return fmt.Errorf("no paper ids given and no categories configured")
	}

	client, err := completion.New(cfg.Completion)
	if err != nil {
		return err
	}

	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer store.Close()

	cache, err := source.NewCache(cfg.Source.CacheDir, cfg.Source.CacheTTL)
	if err != nil {
		return err
	}

	orch := pipeline.NewOrchestrator(client,
		source.NewFetcher(cfg.Source), cache, cfg.Pipeline, slog.Default())

	runner := &pipeline.Runner{
		Metadata: metadata.NewSource(cfg.Metadata),
		Ledger:   store,
		Analyzer: orch,
		Config:   cfg.Pipeline,
		Log:      slog.Default(),
	}

	summary, err := runner.Run(cmd.Context(), os.Stdout, args)
	if err != nil {
		return err
	}
	for _, e := range summary.Errors {
		fmt.Fprintln(os.Stderr, "error:", e)
	}
	if summary.Errored > 0 {
		return fmt.Errorf("%d paper(s) failed", summary.Errored)
	}
	return nil
}
