package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/pixelgate/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the comparison result cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove cache entries older than --max-age",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		maxAge, _ := cmd.Flags().GetDuration("max-age")
		n, err := store.Prune(maxAge)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d entries\n", n)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		return store.Clear()
	},
}

func init() {
	cachePruneCmd.Flags().Duration("max-age", 7*24*time.Hour, "Age past which entries are removed")
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openStore(cmd *cobra.Command) (*cache.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cache.NewStore(cfg.CacheDir)
}
