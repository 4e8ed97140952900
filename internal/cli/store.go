package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/avolkov/paperboy/internal/model"
	"github.com/avolkov/paperboy/internal/store"
)

var (
	recentLimit int
	statsLimit  int
	resetAll    bool
)

// storeCmd represents the store command
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and repair the processed-paper ledger",
	Long: `Inspect the ledger of processed papers.

Each paper is recorded once with its outcome. When a run reports an
outcome conflict, use 'paperboy store reset <source>/<id>' to clear the
stale record so the paper can be reprocessed.`,
}

var storeRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently processed papers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ledger, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer func() { _ = ledger.Close() }()

		records, err := ledger.RecentRecords(context.Background(), recentLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No processed papers recorded.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tOUTCOME\tSCORE\tBUCKET\tFIRST SEEN")
		for _, rec := range records {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
				rec.Key, rec.Outcome, rec.Score, rec.Bucket,
				rec.FirstSeen.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

var storeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize ledger outcomes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ledger, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer func() { _ = ledger.Close() }()

		records, err := ledger.RecentRecords(context.Background(), statsLimit)
		if err != nil {
			return err
		}

		counts := map[model.Outcome]int{}
		for _, rec := range records {
			counts[rec.Outcome]++
		}

		fmt.Printf("Papers recorded: %d (most recent %d)\n", len(records), statsLimit)
		for _, outcome := range []model.Outcome{
			model.OutcomeIncluded,
			model.OutcomeBelowThreshold,
			model.OutcomeFiltered,
			model.OutcomeErrorSkipped,
		} {
			fmt.Printf("  %-16s %d\n", outcome, counts[outcome])
		}
		return nil
	},
}

var storeResetCmd = &cobra.Command{
	Use:   "reset [<source>/<id>]",
	Short: "Clear ledger records so papers can be reprocessed",
	Long: `Reset removes one paper from the ledger, or every paper with --all.
A full reset forces complete reprocessing and cannot be undone.

Example:
  paperboy store reset arxiv/2603.01234
  paperboy store reset biorxiv/10.1101/2026.03.10.123456
  paperboy store reset --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if resetAll == (len(args) == 1) {
			return fmt.Errorf("provide either a <source>/<id> key or --all")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ledger, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer func() { _ = ledger.Close() }()

		if resetAll {
			if err := ledger.ResetAll(context.Background()); err != nil {
				return err
			}
			fmt.Println("Cleared the entire ledger; every paper is eligible for reprocessing.")
			return nil
		}

		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		if err := ledger.Reset(context.Background(), key); err != nil {
			return err
		}
		fmt.Printf("Reset %s; it will be reprocessed on the next run.\n", key)
		return nil
	},
}

// parseKey splits "source/id". DOI-based IDs contain slashes, so only the
// first one separates the source.
func parseKey(arg string) (model.Key, error) {
	source, id, ok := strings.Cut(arg, "/")
	if !ok || source == "" || id == "" {
		return model.Key{}, fmt.Errorf("invalid key %q: expected <source>/<id>", arg)
	}
	return model.Key{Source: source, SourceID: id}, nil
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeRecentCmd)
	storeCmd.AddCommand(storeStatsCmd)
	storeCmd.AddCommand(storeResetCmd)

	storeRecentCmd.Flags().IntVar(&recentLimit, "limit", 50, "maximum records to list")
	storeStatsCmd.Flags().IntVar(&statsLimit, "limit", 1000, "how many recent records to summarize")
	storeResetCmd.Flags().BoolVar(&resetAll, "all", false, "clear every record in the ledger")
}
