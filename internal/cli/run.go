package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/avolkov/paperboy/internal/cache"
	"github.com/avolkov/paperboy/internal/classify"
	"github.com/avolkov/paperboy/internal/deliver"
	"github.com/avolkov/paperboy/internal/feed"
	"github.com/avolkov/paperboy/internal/logging"
	"github.com/avolkov/paperboy/internal/model"
	"github.com/avolkov/paperboy/internal/pipeline"
	"github.com/avolkov/paperboy/internal/store"
	"github.com/avolkov/paperboy/internal/util"
)

var (
	dryRun     bool
	runTimeout time.Duration
	lookback   time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, classify, and deliver one digest",
	Long: `Run executes one complete digest cycle:
- Fetch new paper metadata from the configured feeds
- Pre-filter with keyword heuristics and skip already-processed papers
- Classify the survivors with the configured model
- Assemble a ranked digest and deliver it by email
- Record every paper's outcome in the ledger

With --dry-run the digest is printed to stdout instead of emailed, and
outcomes go to an in-memory ledger that is discarded afterwards.

Example:
  paperboy run
  paperboy run --dry-run --lookback 72h`,
	Args: cobra.NoArgs,
	RunE: runDigest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the digest instead of emailing, keep no ledger records")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "overall run timeout")
	runCmd.Flags().DurationVar(&lookback, "lookback", 0, "override the fetch window (e.g. 72h)")
}

func runDigest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if lookback > 0 {
		cfg.Sources.Lookback = lookback
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger := logging.New(cfg.Logging.Level)

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	ledger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}

	classifier, err := classify.NewOpenAIClassifier(cfg.Classifier, cfg.Buckets, logger)
	if err != nil {
		return err
	}

	var deliverer deliver.Deliverer
	if dryRun {
		deliverer = deliver.NewFileDeliverer(os.Stdout, logger)
	} else {
		deliverer, err = deliver.NewEmailDeliverer(cfg.Email, logger)
		if err != nil {
			return err
		}
	}

	summary, err := pipeline.NewPipeline(cfg, registry, classifier, deliverer, ledger, logger).Run(ctx)
	if err != nil {
		return fmt.Errorf("run %s: %w", summary.RunID, err)
	}

	fmt.Fprintf(os.Stderr, "Run %s: fetched %d, delivered %d (%d top picks)\n",
		summary.RunID, summary.Fetched, summary.Kept, summary.TopPicks)
	return nil
}

func openLedger(cfg *model.Config) (store.Store, error) {
	if dryRun {
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(cfg.Store.Path)
}

// buildRegistry registers every source the configuration enables
func buildRegistry(cfg *model.Config, logger *slog.Logger) (*feed.Registry, error) {
	var httpCache cache.Cache
	if cfg.HTTP.CacheDir != "" {
		httpCache = cache.NewLayeredCache(cfg.HTTP.CacheTTL, cfg.HTTP.CacheDir, cfg.HTTP.CacheTTL)
	} else {
		httpCache = cache.NewMemoryCache(cfg.HTTP.CacheTTL, 2*cfg.HTTP.CacheTTL)
	}
	fetcher := feed.NewFetcher(cfg.HTTP, httpCache)

	registry := feed.NewRegistry()
	if len(cfg.Sources.ArxivCategories) > 0 {
		registry.Register(feed.NewArxivSource(fetcher, cfg.Sources.ArxivCategories, logger))
	}
	if len(cfg.Sources.BiorxivServers) > 0 {
		registry.Register(feed.NewBiorxivSource(fetcher, cfg.Sources.BiorxivServers, logger))
	}
	if len(cfg.Sources.ArxivListings) > 0 {
		robots := util.NewRobotsChecker(cfg.HTTP.UserAgent, cfg.HTTP.Timeout)
		registry.Register(feed.NewListingSource(fetcher, robots, cfg.Sources.ArxivListings, logger))
	}
	if len(cfg.Sources.PubmedQueries) > 0 {
		registry.Register(feed.NewPubmedSource(fetcher, cfg.Sources.PubmedAPIKey, cfg.Sources.PubmedQueries, logger))
	}
	if len(registry.Names()) == 0 {
		return nil, fmt.Errorf("no sources configured: set sources.arxiv_categories, sources.arxiv_listings, sources.biorxiv_servers, or sources.pubmed_queries")
	}
	return registry, nil
}
