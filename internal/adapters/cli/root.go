// Package cli is the cache administration command line.
package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
)

// NewRootCommand builds irobotctl around the cache admin use case.
func NewRootCommand(admin ports.CacheAdmin) *cobra.Command {
	root := &cobra.Command{
		Use:           "irobotctl",
		Short:         "Administer the iRobot query cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newPurgeCommand(admin),
		newRollupCommand(admin),
		newInvalidateCommand(admin),
		newResetTTLCommand(admin),
		newStatsCommand(admin),
	)
	return root
}

func newPurgeCommand(admin ports.CacheAdmin) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-expired",
		Short: "Delete expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			removed, err := admin.PurgeExpired(cmd.Context())
			if err != nil {
				return fmt.Errorf("purge failed: %w", err)
			}
			cmd.Printf("Removed %d expired entries.\n", removed)
			return nil
		},
	}
}

func newRollupCommand(admin ports.CacheAdmin) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "rollup-stats",
		Short: "Recompute the daily cache statistics",
		Long: `Recomputes one day of cache statistics from the entries table.
Defaults to the current UTC day.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day := time.Now().UTC()
			if date != "" {
				parsed, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", date)
				}
				day = parsed
			}
			stats, err := admin.RollupStatistics(cmd.Context(), day)
			if err != nil {
				return fmt.Errorf("rollup failed: %w", err)
			}
			printStatsRow(cmd, *stats)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to roll up (YYYY-MM-DD)")
	return cmd
}

func newInvalidateCommand(admin ports.CacheAdmin) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate [document-id]",
		Short: "Drop cached answers citing a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := admin.InvalidateDocument(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("invalidate failed: %w", err)
			}
			cmd.Printf("Removed %d entries citing %s.\n", removed, args[0])
			return nil
		},
	}
}

func newResetTTLCommand(admin ports.CacheAdmin) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-ttl [entry-id]",
		Short: "Restart the TTL of an active cache entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := admin.ResetTTL(cmd.Context(), args[0])
			if err != nil {
				if domain.IsKind(err, domain.ErrCacheEntryNotFound) {
					return fmt.Errorf("no active cache entry %s", args[0])
				}
				return fmt.Errorf("reset ttl failed: %w", err)
			}
			cmd.Printf("Entry %s now expires at %s.\n", entry.ID, entry.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newStatsCommand(admin ports.CacheAdmin) *cobra.Command {
	var (
		days   int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show daily cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			stats, err := admin.StatisticsForDays(cmd.Context(), days)
			if err != nil {
				return fmt.Errorf("stats failed: %w", err)
			}
			if asJSON {
				data, err := json.MarshalIndent(stats, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal stats: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}
			if len(stats) == 0 {
				cmd.Println("No statistics recorded.")
				return nil
			}
			cmd.Println("DATE        REQUESTS  HITS  MISSES  HIT%    TOKENS SAVED  SAVED USD  SAVED XAF")
			for _, day := range stats {
				printStatsRow(cmd, day)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 7, "number of days to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output statistics as JSON")
	return cmd
}

func printStatsRow(cmd *cobra.Command, s domain.DailyCacheStatistics) {
	cmd.Printf("%-10s  %8d  %4d  %6d  %5.1f  %12d  %9.4f  %9.2f\n",
		s.Date.Format(time.DateOnly), s.TotalRequests, s.CacheHits, s.CacheMisses,
		s.HitRate, s.TokensSaved, s.CostSaved.USD, s.CostSaved.XAF)
}
