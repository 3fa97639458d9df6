// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pillumina/PaperFuse/internal/ledger"
	"github.com/pillumina/PaperFuse/pkg/types"
)

var papersCmd = &cobra.Command{
	Use:   "papers",
	Short: "Inspect the analysis ledger (list, show, clear)",
	Long: `Papers queries the local analysis ledger. Use subcommands to list papers
with filters, show a single record in full, or clear the ledger.`,
}

// --- list subcommand ---

var papersListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List analyzed papers with filters",
	Long: `List prints papers from the ledger, newest first. A free-text query
searches titles, abstracts, and summaries; flags add structured filters.`,
	RunE: runPapersList,
}

func runPapersList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer store.Close()

	filter := ledger.Filter{Search: strings.Join(args, " ")}
	filter.Tag, _ = cmd.Flags().GetString("tag")
	filter.MinScore, _ = cmd.Flags().GetInt("min-score")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	filter.Offset, _ = cmd.Flags().GetInt("offset")

	if from, _ := cmd.Flags().GetString("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return fmt.Errorf("parsing --from: %w", err)
		}
		filter.From = t
	}
	if to, _ := cmd.Flags().GetString("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return fmt.Errorf("parsing --to: %w", err)
		}
		filter.To = t
	}
	if cmd.Flags().Changed("analyzed") {
		analyzed, _ := cmd.Flags().GetBool("analyzed")
		filter.Analyzed = &analyzed
	}

	papers, err := store.List(context.Background(), filter)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(papers)
	}
	return printPaperTable(papers)
}

func printPaperTable(papers []types.Paper) error {
	if len(papers) == 0 {
		fmt.Println("No papers found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-14s  %-5s  %-8s  %-58s  %s\n",
		"ID", "Score", "Depth", "Title", "Tags")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))

	for _, p := range papers {
		title := p.Title
		if len(title) > 58 {
			title = title[:55] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-14s  %-5d  %-8s  %-58s  %s\n",
			p.ID, p.Score, p.Depth, title, strings.Join(p.Tags, ","))
	}
	fmt.Fprintf(os.Stdout, "\n%d paper(s)\n", len(papers))
	return nil
}

// --- show subcommand ---

var papersShowCmd = &cobra.Command{
	Use:   "show <paper-id>",
	Short: "Show the full ledger record for one paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runPapersShow,
}

func runPapersShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.GetByExternalID(context.Background(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	out, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

// --- clear subcommand ---

var papersClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every paper from the ledger",
	RunE:  runPapersClear,
}

func runPapersClear(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("refusing to clear the ledger without --yes")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(context.Background()); err != nil {
		return err
	}
	fmt.Println("Ledger cleared.")
	return nil
}

func init() {
	papersListCmd.Flags().String("tag", "", "filter by classification tag")
	papersListCmd.Flags().Int("min-score", 0, "inclusive score floor")
	papersListCmd.Flags().String("from", "", "publication date range start (YYYY-MM-DD)")
	papersListCmd.Flags().String("to", "", "publication date range end (YYYY-MM-DD)")
	papersListCmd.Flags().Bool("analyzed", false, "filter by analyzed state")
	papersListCmd.Flags().Int("limit", 0, "maximum results per page")
	papersListCmd.Flags().Int("offset", 0, "pagination offset")
	papersListCmd.Flags().Bool("json", false, "output as JSON")

	papersShowCmd.Flags().Bool("json", false, "output as JSON")

	papersClearCmd.Flags().Bool("yes", false, "confirm deletion")

	papersCmd.AddCommand(papersListCmd)
	papersCmd.AddCommand(papersShowCmd)
	papersCmd.AddCommand(papersClearCmd)
	rootCmd.AddCommand(papersCmd)
}
