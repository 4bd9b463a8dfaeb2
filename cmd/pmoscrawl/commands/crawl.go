package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"pmoscrawl/lib/browser"
	"pmoscrawl/lib/csvstore"
	"pmoscrawl/lib/scrapers/pmos"
	"pmoscrawl/lib/serviceutil"
	"pmoscrawl/lib/timezone"
)

var (
	crawlTasks []string
	crawlStart string
	crawlEnd   string
	crawlForce bool
	crawlEvery time.Duration
)

func init() {
	crawlCmd.Flags().StringSliceVarP(&crawlTasks, "task", "t", nil, "task names to crawl (default: all enabled tasks)")
	crawlCmd.Flags().StringVar(&crawlStart, "start", "", "first date to crawl, YYYY-MM-DD (default: today)")
	crawlCmd.Flags().StringVar(&crawlEnd, "end", "", "last date to crawl, YYYY-MM-DD (default: today)")
	crawlCmd.Flags().BoolVar(&crawlForce, "force", false, "recrawl units that are already marked complete")
	crawlCmd.Flags().DurationVar(&crawlEvery, "every", 0, "rerun on this interval instead of exiting (e.g. 6h)")
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawls the configured tasks over a date range and writes one CSV per unit.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		tasks, unknown := pmos.SelectTasks(cfg.catalog(), crawlTasks)
		if len(unknown) > 0 {
			serviceutil.Fatal("unknown tasks", fmt.Errorf("%s", strings.Join(unknown, ", ")))
		}
		if len(tasks) == 0 {
			serviceutil.Fatal("no tasks selected", fmt.Errorf("every task is disabled"))
		}

		start, err := resolveDay(crawlStart, cfg.DateRange.Start)
		if err != nil {
			serviceutil.Fatal("parse start date", err)
		}
		end, err := resolveDay(crawlEnd, cfg.DateRange.End)
		if err != nil {
			serviceutil.Fatal("parse end date", err)
		}
		if end.Before(start) {
			serviceutil.Fatal("bad date range", fmt.Errorf("end %s is before start %s",
				end.Format(time.DateOnly), start.Format(time.DateOnly)))
		}

		index, err := csvstore.OpenIndex(cfg.Storage.IndexPath)
		if err != nil {
			serviceutil.Fatal("open completion index", err)
		}
		defer index.Close()
		store, err := csvstore.Open(cfg.Storage.OutputDir, index)
		if err != nil {
			serviceutil.Fatal("open csv store", err)
		}

		for {
			err := crawlOnce(ctx, cfg, store, tasks, start, end)
			if err != nil && ctx.Err() == nil {
				serviceutil.Fatal("crawl", err)
			}
			if crawlEvery <= 0 || ctx.Err() != nil {
				return
			}

			slog.InfoContext(ctx, "sleeping until next run", slog.Duration("every", crawlEvery))
			select {
			case <-ctx.Done():
				return
			case <-time.After(crawlEvery):
			}
			// catch up to today on scheduled reruns unless the end
			// date was pinned explicitly
			if crawlEnd == "" && cfg.DateRange.End == "" {
				end = timezone.Day(timezone.Now())
			}
		}
	},
}

// crawlOnce owns the browser session for a single run so that
// scheduled reruns reconnect from scratch.
func crawlOnce(ctx context.Context, cfg Config, store *csvstore.Store, tasks []pmos.TaskSpec, start, end time.Time) error {
	session, err := browser.Open(ctx, cfg.Browser)
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	defer session.Close()

	page := session.Page()
	if err := page.Navigate(ctx, cfg.TargetUrl); err != nil {
		return fmt.Errorf("navigate to %s: %w", cfg.TargetUrl, err)
	}

	crawler := pmos.New(page, store, cfg.crawlConfig())
	crawler.Tracker().Force = crawlForce

	report, err := crawler.Run(ctx, tasks, start, end)
	if report != nil {
		renderReport(report)
	}
	return err
}

func resolveDay(flag, configured string) (time.Time, error) {
	raw := flag
	if raw == "" {
		raw = configured
	}
	if raw == "" {
		return timezone.Day(timezone.Now()), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, timezone.Location)
	if err != nil {
		return time.Time{}, err
	}
	return timezone.Day(t), nil
}

func renderReport(report *pmos.RunReport) {
	fmt.Printf(
		"finished in %s: %d completed, %d skipped, %d failed\n",
		report.Finished.Sub(report.Started).Round(time.Second),
		report.Completed, report.Skipped, report.Failed,
	)

	t := newTable()
	t.AppendHeader(table.Row{"Unit", "Status", "Method", "Rows", "Attempts", "Error"})
	for _, u := range report.Units {
		if u.Status == pmos.UnitSkipped {
			continue
		}
		t.AppendRow(table.Row{u.Key, u.Status, u.Method, u.Rows, u.Attempts, u.Err})
	}
	t.Render()
}
