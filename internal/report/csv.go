package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
)

// CSVFormatter formats the edge list as CSV, one row per edge.
type CSVFormatter struct {
	config Config
}

// NewCSVFormatter creates a new CSV formatter.
func NewCSVFormatter(config Config) *CSVFormatter {
	return &CSVFormatter{config: config}
}

// Format writes a header row followed by one "a,b,weight" row per edge.
func (f *CSVFormatter) Format(result *Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"a", "b", "weight"}); err != nil {
		return nil, err
	}

	edges := result.Graph.Edges()
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A.String() < edges[j].A.String()
		}
		return edges[i].B.String() < edges[j].B.String()
	})
	for _, e := range edges {
		row := []string{e.A.String(), e.B.String(), fmt.Sprintf("%d", e.Weight)}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ContentType returns the MIME type for CSV output.
func (f *CSVFormatter) ContentType() string { return "text/csv" }

// FileExtension returns the file extension for CSV output.
func (f *CSVFormatter) FileExtension() string { return "csv" }
