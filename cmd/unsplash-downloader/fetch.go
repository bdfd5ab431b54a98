package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alisonjoe/unsplash-downloader/pkg/auth"
	"github.com/alisonjoe/unsplash-downloader/pkg/dedupe"
	"github.com/alisonjoe/unsplash-downloader/pkg/downloader"
	"github.com/alisonjoe/unsplash-downloader/pkg/logger"
	"github.com/alisonjoe/unsplash-downloader/pkg/pipeline"
	"github.com/alisonjoe/unsplash-downloader/pkg/store"
	"github.com/alisonjoe/unsplash-downloader/pkg/unsplash"
)

var (
	fetchAccessKey  string
	fetchOutput     string
	fetchDatabase   string
	fetchBatchSize  int
	fetchMaxPages   int
	fetchCategories []string
)

// fetchCmd runs one acquisition pass over the editorial feed
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download new photos from the Unsplash editorial feed",
	Long: `Fetch pages from the Unsplash editorial feed, download photos that are
not yet in the local store, and record their metadata.

The run resumes from the persisted cursor, skips photos already acquired,
and can be interrupted at any time; the next run picks up where it
stopped.`,
	Example: `  # Fetch until the feed is exhausted
  unsplash-downloader fetch

  # Fetch three pages of 30 photos each
  unsplash-downloader fetch --max-pages 3 --batch-size 30

  # Tag everything from this run with a category
  unsplash-downloader fetch --category wallpapers`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchAccessKey, "access-key", "", "Unsplash API access key")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "download directory")
	fetchCmd.Flags().StringVar(&fetchDatabase, "database", "", "metadata database file")
	fetchCmd.Flags().IntVar(&fetchBatchSize, "batch-size", 0, "photos per page (max 30)")
	fetchCmd.Flags().IntVar(&fetchMaxPages, "max-pages", 0, "stop after this many pages (0 = until feed ends)")
	fetchCmd.Flags().StringSliceVar(&fetchCategories, "category", nil, "extra category to attach to every photo")
}

func runFetch(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if fetchAccessKey != "" {
		flags["access-key"] = fetchAccessKey
	}
	if fetchOutput != "" {
		flags["output"] = fetchOutput
	}
	if fetchDatabase != "" {
		flags["database"] = fetchDatabase
	}
	if fetchBatchSize > 0 {
		flags["batch-size"] = fetchBatchSize
	}
	if fetchMaxPages > 0 {
		flags["max-pages"] = fetchMaxPages
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	// Fall back to the credential manager when neither flag nor
	// environment provided a key
	if cfg.Unsplash.AccessKey == "" {
		if manager, mErr := auth.NewManager(); mErr == nil {
			if cred, cErr := manager.RetrieveDefault(); cErr == nil {
				cfg.Unsplash.AccessKey = cred.AccessKey
			}
		}
	}
	if err := cfg.RequireAccessKey(); err != nil {
		return err
	}

	log := logger.GetLogger()

	metaStore, err := store.Open(cfg.Output.DatabaseFile, store.Options{
		EnableURLLogging: cfg.Output.EnableURLLogging,
		Logger:           log,
	})
	if err != nil {
		return err
	}
	defer metaStore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	index, err := dedupe.Load(ctx, metaStore)
	if err != nil {
		return err
	}
	log.InfoWithFields("deduplication index loaded", map[string]interface{}{
		"known_ids": index.Len(),
	})

	client := unsplash.NewClient(unsplash.Options{
		AccessKey:          cfg.Unsplash.AccessKey,
		BaseURL:            cfg.Unsplash.BaseURL,
		Timeout:            cfg.Download.RequestTimeout,
		RequestsPerHour:    cfg.RateLimit.RequestsPerHour,
		MinRequestInterval: cfg.RateLimit.MinRequestInterval,
		MaxRetries:         cfg.RateLimit.MaxRetries,
		Logger:             log,
	})

	fetcher := downloader.New(cfg.Output.BaseDirectory, cfg.Download.DownloadTimeout, log)

	p := pipeline.New(client, fetcher, metaStore, index, pipeline.Options{
		BatchSize:       cfg.Download.BatchSize,
		MaxPages:        cfg.Download.MaxPages,
		ExtraCategories: fetchCategories,
		Logger:          log,
	})

	summary, err := p.Run(ctx)

	fmt.Printf("\nRun %d finished: %s\n", summary.RunID, summary.State)
	fmt.Printf("  pages:      %d\n", summary.Pages)
	fmt.Printf("  fetched:    %d\n", summary.Fetched)
	fmt.Printf("  skipped:    %d\n", summary.Skipped)
	fmt.Printf("  downloaded: %d\n", summary.Downloaded)
	fmt.Printf("  failed:     %d\n", summary.Failed)
	fmt.Printf("  next page:  %d\n", summary.NextPage)

	return err
}
