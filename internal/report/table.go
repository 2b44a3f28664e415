package report

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/olekukonko/tablewriter"
)

// TableFormatter formats the edge list as a bordered table.
type TableFormatter struct {
	config Config
}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter(config Config) *TableFormatter {
	return &TableFormatter{config: config}
}

// Format renders one row per edge plus a summary footer.
func (f *TableFormatter) Format(result *Result) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Graph: %d nodes, %d edges\n\n", result.Graph.NodeCount(), result.Graph.EdgeCount())

	table := tablewriter.NewWriter(&buf)
	table.SetBorder(true)
	table.SetRowLine(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("│")
	table.SetColumnSeparator("│")
	table.SetRowSeparator("─")
	table.SetHeaderLine(true)
	table.SetTablePadding(" ")
	table.SetHeader([]string{"A", "B", "Weight"})

	edges := result.Graph.Edges()
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A.String() < edges[j].A.String()
		}
		return edges[i].B.String() < edges[j].B.String()
	})
	for _, e := range edges {
		table.Append([]string{e.A.String(), e.B.String(), fmt.Sprintf("%d", e.Weight)})
	}
	table.Render()

	s := result.Summary
	fmt.Fprintf(&buf, "\nPre-probes sent/recv:  %d / %d\n", s.SentPreProbes, s.RecvPreProbeResponses)
	fmt.Fprintf(&buf, "Main probes sent/recv: %d / %d\n", s.SentMainProbes, s.RecvMainProbeResponses)
	fmt.Fprintf(&buf, "Responders (back/fwd/total): %d / %d / %d\n", s.BackwardResponders, s.ForwardResponders, s.TotalResponders)
	fmt.Fprintf(&buf, "Elapsed: %s\n", s.Elapsed)

	return buf.Bytes(), nil
}

// ContentType returns the MIME type for table output.
func (f *TableFormatter) ContentType() string { return "text/plain" }

// FileExtension returns the file extension for table output.
func (f *TableFormatter) FileExtension() string { return "txt" }
