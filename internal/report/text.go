package report

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/fatih/color"
)

// TextFormatter renders the edge list as a plain, greppable line-per-edge
// listing with a colored summary footer.
type TextFormatter struct {
	config Config
}

// NewTextFormatter creates a new text formatter.
func NewTextFormatter(config Config) *TextFormatter {
	return &TextFormatter{config: config}
}

// Format renders one "A -- B (weight N)" line per edge, sorted for stable
// output, followed by the run summary.
func (f *TextFormatter) Format(result *Result) ([]byte, error) {
	var buf bytes.Buffer

	edges := result.Graph.Edges()
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A.String() < edges[j].A.String()
		}
		return edges[i].B.String() < edges[j].B.String()
	})

	for _, e := range edges {
		line := fmt.Sprintf("%s -- %s (weight %d)\n", e.A, e.B, e.Weight)
		if f.config.Colors {
			line = color.New(color.FgGreen).Sprint(line)
		}
		buf.WriteString(line)
	}

	f.writeSummary(&buf, result)
	return buf.Bytes(), nil
}

func (f *TextFormatter) writeSummary(buf *bytes.Buffer, result *Result) {
	s := result.Summary
	header := "\nSummary:\n"
	if f.config.Colors {
		header = color.New(color.FgCyan, color.Bold).Sprint(header)
	}
	buf.WriteString(header)
	fmt.Fprintf(buf, "  Pre-probes sent/recv:  %d / %d\n", s.SentPreProbes, s.RecvPreProbeResponses)
	fmt.Fprintf(buf, "  Main probes sent/recv: %d / %d\n", s.SentMainProbes, s.RecvMainProbeResponses)
	fmt.Fprintf(buf, "  Responders (back/fwd/total): %d / %d / %d\n", s.BackwardResponders, s.ForwardResponders, s.TotalResponders)
	fmt.Fprintf(buf, "  Graph: %d nodes, %d edges\n", result.Graph.NodeCount(), result.Graph.EdgeCount())
	fmt.Fprintf(buf, "  Elapsed: %s\n", s.Elapsed)
}

// ContentType returns the MIME type for text output.
func (f *TextFormatter) ContentType() string { return "text/plain" }

// FileExtension returns the file extension for text output.
func (f *TextFormatter) FileExtension() string { return "txt" }
