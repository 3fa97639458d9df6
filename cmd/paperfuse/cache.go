// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pillumina/PaperFuse/internal/source"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the evidence cache (stats, clear)",
	Long: `Cache manages the on-disk store of flattened source text. Entries expire
after the configured TTL; clear removes everything immediately.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print live entry count and total size",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache()
		if err != nil {
			return err
		}
		entries, bytes, err := cache.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("%d entr%s, %.1f KiB\n", entries, pluralY(entries), float64(bytes)/1024)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached evidence",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache()
		if err != nil {
			return err
		}
		if err := cache.Clear(); err != nil {
			return err
		}
		fmt.Println("Cache cleared.")
		return nil
	},
}

func openCache() (*source.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return source.NewCache(cfg.Source.CacheDir, cfg.Source.CacheTTL)
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
