package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"chatpoll/pkg/polling"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the current per-conversation message counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp("cmd.snapshot")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := a.openSource(ctx); err != nil {
			return err
		}
		defer a.close()

		snap, err := polling.FetchSnapshot(ctx, a.exec, a.cfg.Polling)
		if err != nil {
			return err
		}

		renderSnapshot(cmd.OutOrStdout(), snap)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

func renderSnapshot(w io.Writer, snap polling.Snapshot) {
	if len(snap) == 0 {
		fmt.Fprintln(w, "no conversations")
		return
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7DD3FC")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("CONVERSATION", "COUNT").
		Rows(snapshotRows(snap)...)

	fmt.Fprintln(w, t.Render())
}

func snapshotRows(snap polling.Snapshot) [][]string {
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{id, fmt.Sprint(snap[id])})
	}
	return rows
}
