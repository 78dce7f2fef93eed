package workflow

import (
	"fmt"
	"strings"
)

// RenderStatus renders the full status view shared by the CLI and the
// status hook file.
func RenderStatus(st Status) string {
	if st.Stage == "" {
		return "workflow not initialized; run 'flow set <stage>' to begin\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Current stage: %s", st.Stage)
	if st.Label != "" && st.Label != st.Stage {
		fmt.Fprintf(&b, " (%s)", st.Label)
	}
	b.WriteByte('\n')
	if st.Milestone != "" {
		fmt.Fprintf(&b, "Milestone: %s\n", st.Milestone)
	}
	if st.Phase != "" {
		fmt.Fprintf(&b, "Phase: %s\n", st.Phase)
	}
	if st.Module != "" {
		fmt.Fprintf(&b, "Active module: %s\n", st.Module)
	}
	if st.Total == 0 {
		b.WriteString("Checklist: empty\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Checklist (%d/%d):\n", st.Checked, st.Total)
	for i, item := range st.Items {
		mark := " "
		if item.Checked {
			mark = "x"
		}
		fmt.Fprintf(&b, "  %d. [%s] %s", i+1, mark, item.Text)
		if item.RequiredAgent != "" && !item.Checked {
			fmt.Fprintf(&b, " (requires review: %s)", item.RequiredAgent)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderOneline renders the compact single-line form used by prompt
// integrations.
func RenderOneline(st Status) string {
	if st.Stage == "" {
		return "uninitialized"
	}
	line := fmt.Sprintf("%s %d/%d", st.Stage, st.Checked, st.Total)
	if st.Module != "" {
		line += " [" + st.Module + "]"
	}
	return line
}
