package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/scheduler"
)

const titleWidth = 60

// printPending writes pending articles as an aligned table. Titles are
// measured in display cells so wide scripts stay aligned.
func printPending(w io.Writer, pending []scheduler.PendingArticle) {
	rows := make([][]string, 0, len(pending)+1)
	rows = append(rows, []string{"SCHEDULED", "ID", "SOURCE", "SCORE", "TITLE"})
	for _, p := range pending {
		rows = append(rows, []string{
			p.ScheduledTime.Local().Format(time.DateTime),
			p.Article.ID,
			p.Article.Source,
			fmt.Sprintf("%.0f", p.Article.RelevanceScore),
			runewidth.Truncate(p.Article.Title, titleWidth, "…"),
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i == len(row)-1 {
				cells[i] = cell
				continue
			}
			cells[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Fprintln(w, strings.Join(cells, "  "))
	}
}
