package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"pmoscrawl/lib/csvstore"
	"pmoscrawl/lib/scrapers/pmos"
	"pmoscrawl/lib/serviceutil"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Checks every persisted CSV for structural problems and date gaps.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		store, err := csvstore.Open(cfg.Storage.OutputDir, nil)
		if err != nil {
			serviceutil.Fatal("open csv store", err)
		}
		validator, err := pmos.ValidateStore(store)
		if err != nil {
			serviceutil.Fatal("validate store", err)
		}

		findings := validator.Findings()
		if len(findings) == 0 {
			fmt.Println("no findings")
			return
		}

		t := newTable()
		t.AppendHeader(table.Row{"Severity", "Unit", "Message"})
		for _, f := range findings {
			t.AppendRow(table.Row{f.Severity, f.Key, f.Message})
		}
		t.Render()

		if !validator.Passed() {
			os.Exit(1)
		}
	},
}
