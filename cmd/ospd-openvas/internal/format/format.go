// Package format renders scan summaries and VT tables for the terminal.
package format

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/janowagner/ospd-openvas/pkg/scanexec"
	"github.com/janowagner/ospd-openvas/pkg/vtcache"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("105")). // Purple
			Bold(true)

	alarmStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Bright red
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")). // Red
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")) // Green

	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")). // Yellow
			Bold(true)
)

// Formatter writes styled output to one destination.
type Formatter struct {
	out io.Writer
}

// New creates a Formatter writing to out.
func New(out io.Writer) *Formatter {
	return &Formatter{out: out}
}

// ScanSummary renders the terminal state of a scan and a table of its
// results.
func (f *Formatter) ScanSummary(scanID, target string, state scanexec.State, results []scanexec.Result) {
	fmt.Fprintln(f.out, headerStyle.Render(fmt.Sprintf("## Scan %s: %s", scanID, target)))

	var style lipgloss.Style
	switch state {
	case scanexec.StateFinished:
		style = okStyle
	case scanexec.StateStopped:
		style = stoppedStyle
	default:
		style = errorStyle
	}
	fmt.Fprintf(f.out, "State: %s\n\n", style.Render(state.String()))

	if len(results) == 0 {
		fmt.Fprintln(f.out, "No results.")
		return
	}

	w := tabwriter.NewWriter(f.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tHOST\tPORT\tOID\tNAME\tVALUE")
	for _, result := range results {
		kind := result.Kind.String()
		switch result.Kind {
		case scanexec.ResultAlarm:
			kind = alarmStyle.Render(kind)
		case scanexec.ResultError:
			kind = errorStyle.Render(kind)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			kind, result.Host, result.Port, result.OID, result.Name, truncate(result.Value, 60))
	}
	w.Flush()
}

// VTTable renders the loaded VT table with its feed version.
func (f *Formatter) VTTable(cache *vtcache.Cache) {
	fmt.Fprintln(f.out, headerStyle.Render(fmt.Sprintf("## VT feed %s (%d VTs)", cache.Version(), cache.Len())))

	w := tabwriter.NewWriter(f.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OID\tNAME\tFAMILY\tQOD")
	for _, oid := range cache.OIDs() {
		vt, ok := cache.Get(oid)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", vt.OID, truncate(vt.Name, 50), vt.Family(), vt.QoD())
	}
	w.Flush()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
