package pmos

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pmoscrawl/lib/browser"
)

// The orchestrator's collaborators, narrowed to what it calls so
// tests can substitute fakes for the browser-backed implementations.

type viewNavigator interface {
	Goto(ctx context.Context, task TaskSpec) error
	Reset()
}

type filterController interface {
	SetDate(ctx context.Context, date time.Time) error
	ListOptions(ctx context.Context, label string) ([]FilterValue, error)
	Select(ctx context.Context, label string, option FilterValue) error
	SetPageSize(ctx context.Context, size int)
	Submit(ctx context.Context) error
}

type unitExtractor interface {
	Extract(ctx context.Context, task TaskSpec, paginate func(context.Context) (Table, error)) (Extraction, error)
}

// Config is the crawl policy: retry, pacing and page sizing.
type Config struct {
	// RetryTimes counts attempts, not re-tries; minimum 1.
	RetryTimes    int           `json:"retry_times"`
	RetryInterval time.Duration `json:"-"`
	// DateInterval paces consecutive dates of one task.
	DateInterval time.Duration `json:"-"`
	// PageInterval paces page flips inside a paginated table.
	PageInterval time.Duration `json:"-"`
	// QueryInterval pads navigation before the view is touched.
	QueryInterval time.Duration `json:"-"`
	PageSize      int           `json:"page_size"`
}

func (c Config) withDefaults() Config {
	if c.RetryTimes < 1 {
		c.RetryTimes = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 5 * time.Second
	}
	if c.DateInterval <= 0 {
		c.DateInterval = 2 * time.Second
	}
	if c.PageInterval <= 0 {
		c.PageInterval = 2 * time.Second
	}
	if c.QueryInterval <= 0 {
		c.QueryInterval = 3 * time.Second
	}
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	return c
}

// UnitStatus is a unit's final disposition in the run report.
type UnitStatus string

const (
	UnitCompleted UnitStatus = "completed"
	UnitSkipped   UnitStatus = "skipped"
	UnitFailed    UnitStatus = "failed"
)

// UnitOutcome is one line of the run report.
type UnitOutcome struct {
	Key      string
	Task     string
	Date     string
	Filter   string
	Status   UnitStatus
	Method   Method
	Rows     int
	Attempts int
	Err      string
}

// RunReport aggregates a whole run.
type RunReport struct {
	Started   time.Time
	Finished  time.Time
	Completed int
	Skipped   int
	Failed    int
	Units     []UnitOutcome
}

func (r *RunReport) add(o UnitOutcome) {
	switch o.Status {
	case UnitCompleted:
		r.Completed++
	case UnitSkipped:
		r.Skipped++
	case UnitFailed:
		r.Failed++
	}
	r.Units = append(r.Units, o)
}

// Crawler is the orchestrator: it walks (task, date, filter)
// combinations, drives the collaborators through each unit, retries
// what is retryable and isolates what is not.
type Crawler struct {
	nav        viewNavigator
	filters    filterController
	extractor  unitExtractor
	view       PagedView
	pager      *Paginator
	normalizer Normalizer
	tracker    *Tracker
	cfg        Config
}

// New wires a live crawler on top of a browser page.
func New(page *browser.Page, store Store, cfg Config) *Crawler {
	cfg = cfg.withDefaults()
	extractor := NewExtractor(page)
	return &Crawler{
		nav:       NewNavigator(page, cfg.QueryInterval),
		filters:   NewFilters(page),
		extractor: extractor,
		view:      LiveView(page, extractor),
		pager:     &Paginator{PageInterval: cfg.PageInterval},
		tracker:   NewTracker(store),
		cfg:       cfg,
	}
}

// newForTesting assembles a crawler from fakes.
func newForTesting(nav viewNavigator, filters filterController, extractor unitExtractor, store Store, cfg Config) *Crawler {
	return &Crawler{
		nav:       nav,
		filters:   filters,
		extractor: extractor,
		pager:     &Paginator{},
		tracker:   NewTracker(store),
		cfg:       cfg.withDefaults(),
	}
}

// Tracker exposes the completion tracker, e.g. to set Force.
func (c *Crawler) Tracker() *Tracker {
	return c.tracker
}

// Run crawls every task over the inclusive date range and reports
// per-unit outcomes. Unit failures never abort siblings; only context
// cancellation stops the run early, and then Run returns the partial
// report alongside the context error.
func (c *Crawler) Run(ctx context.Context, tasks []TaskSpec, start, end time.Time) (*RunReport, error) {
	ctx, span := tracer.Start(ctx, "Crawler.Run")
	defer span.End()

	report := &RunReport{Started: time.Now()}
	defer func() { report.Finished = time.Now() }()

	dates := DateRange(start, end)
	span.SetAttributes(
		attribute.Int("tasks", len(tasks)),
		attribute.Int("dates", len(dates)),
	)
	slog.InfoContext(ctx, "crawl run starting",
		"tasks", len(tasks),
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
		"dates", len(dates))

	for _, task := range tasks {
		if err := c.runTask(ctx, task, dates, report); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "run interrupted")
			return report, err
		}
	}
	slog.InfoContext(ctx, "crawl run finished",
		"completed", report.Completed, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

func (c *Crawler) runTask(ctx context.Context, task TaskSpec, dates []time.Time, report *RunReport) error {
	ctx, span := tracer.Start(ctx, "Crawler.runTask")
	defer span.End()
	span.SetAttributes(attribute.String("task", task.Name))
	slog.InfoContext(ctx, "task starting", "task", task.Name, "category", task.Category)

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return err
		}
		units, err := c.unitsForDate(ctx, task, date, report)
		if err != nil {
			// could not even enumerate the date's units; record one
			// failed unit for the date and move on
			report.add(UnitOutcome{
				Key:    CrawlUnit{Task: task, Date: date}.Key(),
				Task:   task.Name,
				Date:   date.Format("2006-01-02"),
				Status: UnitFailed,
				Err:    err.Error(),
			})
			continue
		}
		for _, unit := range units {
			if err := ctx.Err(); err != nil {
				return err
			}
			report.add(c.runUnit(ctx, unit))
		}
		if len(units) > 0 {
			c.pace(ctx, c.cfg.DateInterval)
		}
	}
	return nil
}

// unitsForDate expands one (task, date) into crawl units, minus the
// already-completed ones. Filterless tasks are decided without any UI
// work; dropdown tasks need the live option set, re-fetched per date
// because options appear over time (newly commissioned nodes).
func (c *Crawler) unitsForDate(ctx context.Context, task TaskSpec, date time.Time, report *RunReport) ([]CrawlUnit, error) {
	if !task.HasDropdown {
		unit := CrawlUnit{Task: task, Date: date}
		if c.tracker.IsComplete(unit.Key()) {
			report.add(skipped(unit))
			return nil, nil
		}
		return []CrawlUnit{unit}, nil
	}

	if err := c.nav.Goto(ctx, task); err != nil {
		return nil, err
	}
	if err := c.filters.SetDate(ctx, date); err != nil {
		return nil, err
	}
	options, err := c.filters.ListOptions(ctx, task.DropdownLabel)
	if err != nil {
		return nil, err
	}
	if len(options) == 0 {
		// a dropdown task with no options is zero work, not an error
		slog.WarnContext(ctx, "dropdown empty, no units for date",
			"task", task.Name, "date", date.Format("2006-01-02"))
		return nil, nil
	}

	var units []CrawlUnit
	for _, opt := range options {
		unit := CrawlUnit{Task: task, Date: date, Filter: opt}
		if c.tracker.IsComplete(unit.Key()) {
			report.add(skipped(unit))
			continue
		}
		units = append(units, unit)
	}
	return units, nil
}

func skipped(unit CrawlUnit) UnitOutcome {
	return UnitOutcome{
		Key:    unit.Key(),
		Task:   unit.Task.Name,
		Date:   unit.Date.Format("2006-01-02"),
		Filter: unit.Filter.Label,
		Status: UnitSkipped,
	}
}

// runUnit attempts one unit under the retry policy. Only transient
// and navigation failures earn another attempt; extraction and shape
// failures are terminal because identical UI state rarely self-heals
// within a run.
func (c *Crawler) runUnit(ctx context.Context, unit CrawlUnit) UnitOutcome {
	ctx, span := tracer.Start(ctx, "Crawler.runUnit")
	defer span.End()
	span.SetAttributes(attribute.String("unit", unit.Key()))

	outcome := UnitOutcome{
		Key:    unit.Key(),
		Task:   unit.Task.Name,
		Date:   unit.Date.Format("2006-01-02"),
		Filter: unit.Filter.Label,
	}
	var lastErr *UnitError
	for attempt := 1; attempt <= c.cfg.RetryTimes; attempt++ {
		outcome.Attempts = attempt
		extraction, err := c.attemptUnit(ctx, unit)
		if err == nil {
			outcome.Status = UnitCompleted
			outcome.Method = extraction.Method
			outcome.Rows = len(extraction.Table.Rows)
			slog.InfoContext(ctx, "unit completed",
				"unit", outcome.Key, "method", extraction.Method, "rows", outcome.Rows,
				"attempt", attempt)
			return outcome
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			lastErr = classify(err)
			break
		}
		lastErr = classify(err)
		slog.ErrorContext(ctx, "unit attempt failed",
			"unit", outcome.Key, "attempt", attempt, "kind", lastErr.Kind.String(), "err", lastErr.Err)
		if !lastErr.Kind.retryable() || attempt == c.cfg.RetryTimes {
			break
		}
		if lastErr.Kind == NavigationFailure {
			// cached menu state is stale after a failed navigation
			c.nav.Reset()
		}
		c.pace(ctx, c.cfg.RetryInterval)
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Kind.String())
	outcome.Status = UnitFailed
	outcome.Err = lastErr.Error()
	return outcome
}

// attemptUnit is one end-to-end pass: navigate, filter, query,
// extract, normalize, persist. Filters apply all-or-nothing; any
// filter error fails the attempt rather than querying half-set state.
func (c *Crawler) attemptUnit(ctx context.Context, unit CrawlUnit) (Extraction, error) {
	if err := c.nav.Goto(ctx, unit.Task); err != nil {
		return Extraction{}, err
	}
	if unit.Task.HasPageSize {
		c.filters.SetPageSize(ctx, c.cfg.PageSize)
	}
	if err := c.filters.SetDate(ctx, unit.Date); err != nil {
		return Extraction{}, err
	}
	if !unit.Filter.IsZero() {
		if err := c.filters.Select(ctx, unit.Task.DropdownLabel, unit.Filter); err != nil {
			return Extraction{}, err
		}
	}
	if err := c.filters.Submit(ctx); err != nil {
		return Extraction{}, err
	}

	extraction, err := c.extractor.Extract(ctx, unit.Task, c.scrapePlan(unit.Task))
	if err != nil {
		return Extraction{}, err
	}

	normalized := c.normalizer.Normalize(extraction.Table, unit.Task, extraction.UpdateTime)
	if err := c.tracker.Commit(unit.Key(), normalized); err != nil {
		return Extraction{}, err
	}
	return extraction, nil
}

// scrapePlan builds the scrape-side strategy for a task: walk the
// pager for paginated tables, otherwise exhaust lazy loading by
// scrolling. Nil when no live view is wired (tests).
func (c *Crawler) scrapePlan(task TaskSpec) func(context.Context) (Table, error) {
	if c.view == nil {
		return nil
	}
	if task.HasPagination {
		return func(ctx context.Context) (Table, error) {
			var acc Table
			_, err := c.pager.ForEachPage(ctx, c.view, func(t Table) error {
				if len(acc.Header) == 0 {
					acc.Header = t.Header
				}
				acc.Rows = append(acc.Rows, t.Rows...)
				return nil
			})
			return acc, err
		}
	}
	return func(ctx context.Context) (Table, error) {
		return c.pager.LoadAllByScrolling(ctx, c.view, 50)
	}
}

// pace sleeps the base interval plus up to a second of jitter, so the
// request rhythm does not look machine-regular to the portal.
func (c *Crawler) pace(ctx context.Context, base time.Duration) {
	jitterMs, err := random.IntRange(0, 1000)
	if err != nil {
		jitterMs = 0
	}
	select {
	case <-ctx.Done():
	case <-time.After(base + time.Duration(jitterMs)*time.Millisecond):
	}
}
