package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"analysisd/pkg/types"
)

// Renderer prints a notification stream. Partials carry the whole
// accumulated text, so only the new suffix is written.
type Renderer struct {
	w       io.Writer
	printed string
}

// NewRenderer writes to w.
func NewRenderer(w io.Writer) *Renderer { return &Renderer{w: w} }

// Partial prints the part of n.Text not printed yet.
func (r *Renderer) Partial(n types.Notification) {
	if strings.HasPrefix(n.Text, r.printed) {
		fmt.Fprint(r.w, n.Text[len(r.printed):])
	} else {
		fmt.Fprint(r.w, "\n", n.Text)
	}
	r.printed = n.Text
}

// Terminal prints the final notification.
func (r *Renderer) Terminal(n types.Notification) {
	if r.printed != "" {
		fmt.Fprintln(r.w)
	}
	dim := color.New(color.Faint)
	switch n.Kind {
	case types.KindResult:
		if rec := n.Record; rec != nil {
			cyan := color.New(color.FgCyan, color.Bold)
			cyan.Fprintf(r.w, "  %s\n", rec.Title)
			fmt.Fprintf(r.w, "  date:     %s\n  time:     %s\n", rec.Date, rec.Time)
			if rec.Location != "" {
				fmt.Fprintf(r.w, "  location: %s\n", rec.Location)
			}
		} else if r.printed == "" {
			fmt.Fprintf(r.w, "  %s\n", n.Text)
		}
		green := color.New(color.FgGreen)
		green.Fprintf(r.w, "  ✓ %s\n", reasonText(n.Reason))
	case types.KindNoResult:
		yellow := color.New(color.FgYellow)
		yellow.Fprintf(r.w, "  ∅ no result (%s)\n", reasonText(n.Reason))
	case types.KindError:
		red := color.New(color.FgRed)
		red.Fprintf(r.w, "  ✗ %s\n", n.Error)
	default:
		dim.Fprintf(r.w, "  ? %s\n", n.Kind)
	}
	if n.RequestID != "" {
		dim.Fprintf(r.w, "  %s\n", n.RequestID)
	}
}

func reasonText(reason string) string {
	switch reason {
	case types.ReasonTimeout:
		return "timed out, answer may be incomplete"
	case "":
		return "done"
	default:
		return reason
	}
}
