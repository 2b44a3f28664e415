package report

import (
	"encoding/json"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flashtrace/flashtrace/internal/topo"
	"github.com/flashtrace/flashtrace/internal/tracerouter"
)

func sampleResult() *Result {
	g := topo.NewGraph()
	g.AddEdge(netip.MustParseAddr("192.0.2.1"), netip.MustParseAddr("198.51.100.1"), 3)
	return &Result{
		Graph: g,
		Summary: tracerouter.Summary{
			SentPreProbes:      10,
			SentMainProbes:     20,
			TotalResponders:    1,
			Elapsed:            2 * time.Second,
		},
	}
}

func TestTextFormatterListsEdgesAndSummary(t *testing.T) {
	f := NewTextFormatter(Config{Colors: false})
	out, err := f.Format(sampleResult())
	require.NoError(t, err)
	require.Contains(t, string(out), "192.0.2.1 -- 198.51.100.1 (weight 3)")
	require.Contains(t, string(out), "Summary:")
}

func TestJSONFormatterRoundTrips(t *testing.T) {
	f := NewJSONFormatter(Config{})
	out, err := f.Format(sampleResult())
	require.NoError(t, err)

	var decoded JSONOutput
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded.Edges, 1)
	require.EqualValues(t, 3, decoded.Edges[0].Weight)
	require.EqualValues(t, 1, decoded.Summary.TotalResponders)
}

func TestCSVFormatterWritesOneRowPerEdge(t *testing.T) {
	f := NewCSVFormatter(Config{})
	out, err := f.Format(sampleResult())
	require.NoError(t, err)
	require.Contains(t, string(out), "a,b,weight")
	require.Contains(t, string(out), "192.0.2.1,198.51.100.1,3")
}

func TestNewFormatterSelectsByFormat(t *testing.T) {
	require.IsType(t, &TableFormatter{}, NewFormatter(FormatTable, Config{}))
	require.IsType(t, &JSONFormatter{}, NewFormatter(FormatJSON, Config{}))
	require.IsType(t, &CSVFormatter{}, NewFormatter(FormatCSV, Config{}))
	require.IsType(t, &TextFormatter{}, NewFormatter(FormatText, Config{}))
}
