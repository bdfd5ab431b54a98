package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alisonjoe/unsplash-downloader/pkg/logger"
	"github.com/alisonjoe/unsplash-downloader/pkg/store"
)

var (
	dbDatabase    string
	dbLimit       int
	dbURLsImageID string
)

// dbCmd groups the metadata store inspection commands
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect and maintain the metadata store",
	Long: `Inspect the SQLite metadata store: collection statistics, searches,
category listings, per-image detail, URL audit logs and error logs.

The health and repair subcommands check referential integrity and clean
up orphaned rows.`,
}

func init() {
	rootCmd.AddCommand(dbCmd)

	dbCmd.PersistentFlags().StringVar(&dbDatabase, "database", "", "metadata database file")
	dbCmd.PersistentFlags().IntVar(&dbLimit, "limit", 20, "maximum rows to show")

	dbCmd.AddCommand(dbStatsCmd)
	dbCmd.AddCommand(dbTablesCmd)
	dbCmd.AddCommand(dbSearchCmd)
	dbCmd.AddCommand(dbCategoryCmd)
	dbCmd.AddCommand(dbDetailCmd)
	dbCmd.AddCommand(dbURLsCmd)
	dbCmd.AddCommand(dbErrorsCmd)
	dbCmd.AddCommand(dbHealthCmd)
	dbCmd.AddCommand(dbRepairCmd)

	dbURLsCmd.Flags().StringVar(&dbURLsImageID, "image", "", "filter by image ID")
}

// openStore opens the store read path for a db subcommand. The returned
// directory is where downloaded images live, used by health and repair.
func openStore() (*store.Store, string, error) {
	flags := make(map[string]interface{})
	if dbDatabase != "" {
		flags["database"] = dbDatabase
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, "", err
	}

	s, err := store.Open(cfg.Output.DatabaseFile, store.Options{
		EnableURLLogging: cfg.Output.EnableURLLogging,
		Logger:           logger.GetLogger(),
	})
	if err != nil {
		return nil, "", err
	}
	return s, cfg.Output.BaseDirectory, nil
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.GetStats(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Images:      %d\n", stats.TotalImages)
		fmt.Printf("Total size:  %.1f MB\n", float64(stats.TotalBytes)/(1024*1024))
		fmt.Printf("Errors:      %d\n", stats.ErrorCount)
		fmt.Printf("Cursor:      page %d (run %d, updated %s)\n",
			stats.CursorPage, stats.CursorRunID, stats.CursorUpdated.Format("2006-01-02 15:04:05"))

		if len(stats.Categories) > 0 {
			fmt.Println("\nCategories:")
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, c := range stats.Categories {
				fmt.Fprintf(w, "  %s\t%d\n", c.Name, c.Count)
			}
			w.Flush()
		}

		if len(stats.RecentDays) > 0 {
			fmt.Println("\nRecent days:")
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, d := range stats.RecentDays {
				fmt.Fprintf(w, "  %s\t%d downloads\t%.1f MB\n",
					d.Date, d.Downloads, float64(d.Bytes)/(1024*1024))
			}
			w.Flush()
		}

		return nil
	},
}

var dbTablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List database tables with row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		tables, err := s.ListTables(context.Background())
		if err != nil {
			return err
		}

		names := make([]string, 0, len(tables))
		for name := range tables {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%d rows\n", name, tables[name])
		}
		return w.Flush()
	},
}

var dbSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search images by description, photographer or ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		images, err := s.Search(context.Background(), args[0], dbLimit)
		if err != nil {
			return err
		}

		printImages(images)
		return nil
	},
}

var dbCategoryCmd = &cobra.Command{
	Use:   "category [name]",
	Short: "List categories, or the images in one category",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := context.Background()

		if len(args) == 0 {
			categories, err := s.ListCategories(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, c := range categories {
				fmt.Fprintf(w, "%s\t%d images\n", c.Name, c.Count)
			}
			return w.Flush()
		}

		images, err := s.ImagesInCategory(ctx, args[0], dbLimit)
		if err != nil {
			return err
		}
		printImages(images)
		return nil
	},
}

var dbDetailCmd = &cobra.Command{
	Use:   "detail <image-id>",
	Short: "Show everything stored about one image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		detail, err := s.GetImageDetail(context.Background(), args[0])
		if err != nil {
			return err
		}

		img := detail.Image
		fmt.Printf("ID:           %s\n", img.ID)
		fmt.Printf("Filename:     %s\n", img.Filename)
		fmt.Printf("Photographer: %s (@%s)\n", img.UserName.String, img.UserUsername.String)
		fmt.Printf("Description:  %s\n", img.Description.String)
		fmt.Printf("Dimensions:   %dx%d\n", img.Width, img.Height)
		fmt.Printf("Likes:        %d\n", img.Likes)
		fmt.Printf("Size:         %d bytes\n", img.FileSize)
		fmt.Printf("Checksum:     %s\n", img.Checksum)
		fmt.Printf("Downloaded:   %s\n", img.DownloadedAt.Format("2006-01-02 15:04:05"))

		if len(detail.Categories) > 0 {
			fmt.Printf("Categories:   %v\n", detail.Categories)
		}
		if len(detail.URLs) > 0 {
			fmt.Println("URLs:")
			for _, u := range detail.URLs {
				fmt.Printf("  %-8s %s\n", u.URLType, u.URL)
			}
		}

		return nil
	},
}

var dbURLsCmd = &cobra.Command{
	Use:   "urls",
	Short: "Show the URL audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		urls, err := s.ListURLLogs(context.Background(), dbURLsImageID, dbLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, u := range urls {
			fmt.Fprintf(w, "%s\t%s\t%s\n", u.ImageID, u.URLType, u.URL)
		}
		return w.Flush()
	},
}

var dbErrorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show recent error log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		entries, err := s.RecentErrors(context.Background(), dbLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, e := range entries {
			imageID := "-"
			if e.ImageID.Valid {
				imageID = e.ImageID.String
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"),
				imageID, e.Phase, e.ErrorClass, e.Message)
		}
		return w.Flush()
	},
}

var dbHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check store and download directory consistency",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, imageDir, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.Health(context.Background(), imageDir)
		if err != nil {
			return err
		}

		printHealth(report)
		if report.Issues() {
			return fmt.Errorf("store has issues; run 'unsplash-downloader db repair'")
		}
		return nil
	},
}

var dbRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Reconcile the store with the download directory",
	Long: `Remove records whose image file is missing, delete files with no
matching record, clean up orphaned rows and reclaim space.

Records whose file has a mismatched checksum are reported by health but
never deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, imageDir, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.Repair(context.Background(), imageDir)
		if err != nil {
			return err
		}

		fmt.Println("Repair complete.")
		printHealth(report)
		return nil
	},
}

func printHealth(report *store.HealthReport) {
	status := "ok"
	if !report.IntegrityOK {
		status = report.IntegrityDetail
	}
	fmt.Printf("Integrity:            %s\n", status)
	fmt.Printf("Images:               %d\n", report.TotalImages)
	fmt.Printf("Orphaned categories:  %d\n", report.OrphanedCategories)
	fmt.Printf("Orphaned URL logs:    %d\n", report.OrphanedURLLogs)
	fmt.Printf("Missing checksums:    %d\n", report.MissingChecksums)
	fmt.Printf("Missing files:        %d\n", report.MissingFiles)
	fmt.Printf("Checksum mismatches:  %d\n", report.ChecksumMismatches)
	fmt.Printf("Orphan files:         %d\n", report.OrphanFiles)
}

func printImages(images []store.ImageRecord) {
	if len(images) == 0 {
		fmt.Println("No images found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, img := range images {
		desc := img.Description.String
		if desc == "" {
			desc = img.AltDescription.String
		}
		if len(desc) > 50 {
			desc = desc[:50] + "..."
		}
		fmt.Fprintf(w, "%s\t@%s\t%dx%d\t%s\n",
			img.ID, img.UserUsername.String, img.Width, img.Height, desc)
	}
	w.Flush()
}
