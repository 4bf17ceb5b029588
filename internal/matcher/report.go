package matcher

import (
	"fmt"
	"strings"
)

// Report renders the human-readable match summary shown to users.
func (r *Result) Report() string {
	if r == nil || r.Outcome == nil {
		return "No match found."
	}

	var b strings.Builder
	if r.Accepted {
		b.WriteString("Match found!\n")
	} else {
		fmt.Fprintf(&b, "No match above %.0f%%, but the closest match found:\n", AcceptThreshold*100)
	}
	o := r.Outcome
	fmt.Fprintf(&b, "ID: %d\nName: %s\nDescription: %s\nPath: %s\nScore: %.2f",
		o.Entry.ID, o.Entry.Name, o.Entry.Description, o.ResolvedPath, o.Score)
	return b.String()
}
