// Package report formats a completed run's topology graph and counters for
// presentation: one Formatter interface, one concrete type per format, and
// a Writer that auto-detects whether stdout is a terminal before deciding
// whether to color.
package report

import (
	"github.com/flashtrace/flashtrace/internal/topo"
	"github.com/flashtrace/flashtrace/internal/tracerouter"
)

// Format selects which Formatter NewFormatter builds.
type Format int

const (
	// FormatText is the colored, streaming-friendly hop-edge listing.
	FormatText Format = iota
	// FormatTable is the detailed tablewriter-rendered edge table.
	FormatTable
	// FormatJSON emits the graph and summary as JSON.
	FormatJSON
	// FormatCSV emits the edge list as CSV.
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatTable:
		return "table"
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	default:
		return "unknown"
	}
}

// Result is what a run hands to a Formatter: the assembled topology graph
// plus the counters gathered along the way.
type Result struct {
	Graph   *topo.Graph
	Summary tracerouter.Summary
}

// Formatter converts a Result to formatted output bytes.
type Formatter interface {
	Format(result *Result) ([]byte, error)
	ContentType() string
	FileExtension() string
}

// Config holds formatter-wide presentation options.
type Config struct {
	Colors bool
}

// DefaultConfig returns a Config with colors enabled; callers typically
// disable it once they've detected a non-terminal stdout.
func DefaultConfig() Config {
	return Config{Colors: true}
}

// NewFormatter builds the Formatter for the requested format.
func NewFormatter(format Format, config Config) Formatter {
	switch format {
	case FormatTable:
		return NewTableFormatter(config)
	case FormatJSON:
		return NewJSONFormatter(config)
	case FormatCSV:
		return NewCSVFormatter(config)
	default:
		return NewTextFormatter(config)
	}
}
