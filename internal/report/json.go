package report

import "encoding/json"

// JSONFormatter formats a Result as JSON.
type JSONFormatter struct {
	config Config
	pretty bool
}

// NewJSONFormatter creates a new JSON formatter; output is pretty-printed
// by default.
func NewJSONFormatter(config Config) *JSONFormatter {
	return &JSONFormatter{config: config, pretty: true}
}

// JSONOutput is the JSON-serializable representation of a Result.
type JSONOutput struct {
	Nodes   []string       `json:"nodes"`
	Edges   []JSONEdge     `json:"edges"`
	Summary JSONRunSummary `json:"summary"`
}

// JSONEdge represents a single graph edge in JSON.
type JSONEdge struct {
	A      string `json:"a"`
	B      string `json:"b"`
	Weight uint8  `json:"weight"`
}

// JSONRunSummary represents the run's counters in JSON.
type JSONRunSummary struct {
	SentPreProbes          uint64 `json:"sent_pre_probes"`
	RecvPreProbeResponses  uint64 `json:"recv_pre_probe_responses"`
	SentMainProbes         uint64 `json:"sent_main_probes"`
	RecvMainProbeResponses uint64 `json:"recv_main_probe_responses"`
	BackwardResponders     int    `json:"backward_responders"`
	ForwardResponders      int    `json:"forward_responders"`
	TotalResponders        int    `json:"total_responders"`
	ElapsedMs              int64  `json:"elapsed_ms"`
}

// Format marshals the Result to JSON.
func (f *JSONFormatter) Format(result *Result) ([]byte, error) {
	out := JSONOutput{
		Nodes: make([]string, 0, result.Graph.NodeCount()),
		Edges: make([]JSONEdge, 0, result.Graph.EdgeCount()),
		Summary: JSONRunSummary{
			SentPreProbes:          result.Summary.SentPreProbes,
			RecvPreProbeResponses:  result.Summary.RecvPreProbeResponses,
			SentMainProbes:         result.Summary.SentMainProbes,
			RecvMainProbeResponses: result.Summary.RecvMainProbeResponses,
			BackwardResponders:     result.Summary.BackwardResponders,
			ForwardResponders:      result.Summary.ForwardResponders,
			TotalResponders:        result.Summary.TotalResponders,
			ElapsedMs:              result.Summary.Elapsed.Milliseconds(),
		},
	}
	for _, n := range result.Graph.Nodes() {
		out.Nodes = append(out.Nodes, n.String())
	}
	for _, e := range result.Graph.Edges() {
		out.Edges = append(out.Edges, JSONEdge{A: e.A.String(), B: e.B.String(), Weight: e.Weight})
	}

	if f.pretty {
		return json.MarshalIndent(out, "", "  ")
	}
	return json.Marshal(out)
}

// ContentType returns the MIME type for JSON output.
func (f *JSONFormatter) ContentType() string { return "application/json" }

// FileExtension returns the file extension for JSON output.
func (f *JSONFormatter) FileExtension() string { return "json" }
