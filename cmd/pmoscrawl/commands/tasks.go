package commands

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"pmoscrawl/lib/scrapers/pmos"
)

func init() {
	rootCmd.AddCommand(tasksCmd)
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Lists the tasks in the catalog.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		t := newTable()
		t.AppendHeader(table.Row{"Task", "Category", "Subcategory", "Tab", "Export", "Dropdown", "Enabled"})
		for _, task := range cfg.catalog() {
			export := string(task.Export)
			if task.Export == pmos.ExportNone {
				export = "-"
			}
			dropdown := "-"
			if task.HasDropdown {
				dropdown = task.DropdownLabel
			}
			t.AppendRow(table.Row{
				task.Name,
				task.Category,
				valueOr(task.SubcategoryPath, "-"),
				valueOr(task.Tab, "-"),
				export,
				dropdown,
				task.Enabled,
			})
		}
		t.Render()
	},
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
