package cli

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/vigix/td/internal/view"
)

const titleColumnWidth = 40

// renderProjection prints the projected task list as an aligned table.
func renderProjection(o *IO, proj view.Projection, showCounts bool) {
	if showCounts {
		o.Printf("total: %d  active: %d  completed: %d\n",
			proj.Counts.Total, proj.Counts.Active, proj.Counts.Completed)

		if len(proj.Tasks) > 0 {
			o.Println()
		}
	}

	if len(proj.Tasks) == 0 {
		if !showCounts {
			o.Println("no tasks found")
		}

		return
	}

	idWidth := 2
	for _, t := range proj.Tasks {
		if w := runewidth.StringWidth(t.ID); w > idWidth {
			idWidth = w
		}
	}

	for _, t := range proj.Tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}

		title := runewidth.Truncate(t.Title, titleColumnWidth, "…")

		o.Printf("%s  [%s]  %-8s  %s  %s\n",
			pad(t.ID, idWidth),
			mark,
			t.Priority,
			pad(title, titleColumnWidth),
			t.CreatedAt.Local().Format("2006-01-02"),
		)
	}
}

// pad right-pads s to width display cells. Plain %-*s counts bytes, which
// misaligns wide runes.
func pad(s string, width int) string {
	gap := width - runewidth.StringWidth(s)
	if gap <= 0 {
		return s
	}

	return s + strings.Repeat(" ", gap)
}
