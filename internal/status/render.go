package status

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Render writes a report to w, as indented JSON or a plain text table.
func Render(w io.Writer, r Report, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	renderText(w, r)
	return nil
}

func renderText(w io.Writer, r Report) {
	fmt.Fprintf(w, "Run:      %s (loop %s)\n", r.RunID, r.LoopID)
	fmt.Fprintf(w, "Status:   %s  autonomy=%s\n", r.RunStatus, r.Autonomy)
	fmt.Fprintf(w, "Progress: %d/%d steps (%.0f%%)", r.Overall.Completed+r.Overall.Skipped, r.Overall.Total, r.Overall.Percent)
	if r.Overall.Skipped > 0 {
		fmt.Fprintf(w, ", %d skipped", r.Overall.Skipped)
	}
	if r.Overall.Failed > 0 {
		fmt.Fprintf(w, ", %d failed", r.Overall.Failed)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "\nPhases:")
	for _, p := range r.Phases {
		marker := " "
		if p.Current {
			marker = ">"
		}
		fmt.Fprintf(w, "  %s %-10s  %d/%d\n", marker, p.Tag, p.Progress.Completed+p.Progress.Skipped, p.Progress.Total)
		for _, s := range p.Steps {
			fmt.Fprintf(w, "      %-20s  %s\n", s.SkillID, s.Status)
		}
	}

	if len(r.Gates) > 0 {
		fmt.Fprintln(w, "\nGates:")
		fmt.Fprintf(w, "  %-20s  %-10s  %-11s  %-8s  %s\n", "ID", "AFTER", "APPROVAL", "REQUIRED", "STATUS")
		for _, g := range r.Gates {
			req := "no"
			if g.Required {
				req = "yes"
			}
			fmt.Fprintf(w, "  %-20s  %-10s  %-11s  %-8s  %s\n", g.ID, g.AfterPhase, g.Approval, req, g.Status)
		}
	}
}

// Bar renders a fixed-width progress bar for playback output.
func Bar(p Progress, width int) string {
	if width <= 0 {
		width = 20
	}
	filled := 0
	if p.Total > 0 {
		filled = (p.Completed + p.Skipped) * width / p.Total
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
