package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"pmoscrawl/lib/browser"
	"pmoscrawl/lib/configutil"
	"pmoscrawl/lib/scrapers/pmos"
	"pmoscrawl/lib/serviceutil"
	"pmoscrawl/lib/telemetry"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "pmoscrawl",
	Short: "pmoscrawl crawls market disclosure data off the Shanxi power trading platform.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type storageConfig struct {
	OutputDir string `json:"output_dir"`
	IndexPath string `json:"index_path"`
}

type requestConfig struct {
	RetryTimes           int `json:"retry_times"`
	RetryIntervalSeconds int `json:"retry_interval_seconds"`
	DateIntervalSeconds  int `json:"date_interval_seconds"`
	PageIntervalSeconds  int `json:"page_interval_seconds"`
	QueryIntervalSeconds int `json:"query_interval_seconds"`
	PageSize             int `json:"page_size"`
}

type dateRangeConfig struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Config struct {
	TargetUrl string          `json:"target_url"`
	Browser   browser.Config  `json:"browser"`
	Storage   storageConfig   `json:"storage"`
	Request   requestConfig   `json:"request"`
	DateRange dateRangeConfig `json:"date_range"`
	// Tasks replaces the built-in catalog when non-empty.
	Tasks []pmos.TaskSpec `json:"tasks,omitempty"`
}

func loadConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("read config", err)
	}
	if cfg.TargetUrl == "" {
		cfg.TargetUrl = "https://pmos.sx.sgcc.com.cn/#/dashboard"
	}
	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = "./data"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "./data/completion.db"
	}
	return cfg
}

func (c Config) catalog() []pmos.TaskSpec {
	if len(c.Tasks) > 0 {
		return c.Tasks
	}
	return pmos.DefaultTasks()
}

func (c Config) crawlConfig() pmos.Config {
	return pmos.Config{
		RetryTimes:    c.Request.RetryTimes,
		RetryInterval: time.Duration(c.Request.RetryIntervalSeconds) * time.Second,
		DateInterval:  time.Duration(c.Request.DateIntervalSeconds) * time.Second,
		PageInterval:  time.Duration(c.Request.PageIntervalSeconds) * time.Second,
		QueryInterval: time.Duration(c.Request.QueryIntervalSeconds) * time.Second,
		PageSize:      c.Request.PageSize,
	}
}
