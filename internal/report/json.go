package report

import (
	"encoding/json"
	"io"

	"github.com/ppiankov/tgmigrate/internal/ledger"
)

type jsonReport struct {
	Meta    jsonMeta     `json:"meta"`
	Counts  jsonCounts   `json:"counts"`
	Failed  []jsonRecord `json:"failed"`
	Pending []jsonRecord `json:"pending"`
}

type jsonMeta struct {
	Ledger  string `json:"ledger"`
	Backend string `json:"backend"`
	Total   int    `json:"total"`
}

type jsonCounts struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Pending int `json:"pending"`
}

type jsonRecord struct {
	ID           int64  `json:"id"`
	DiscoveredAt string `json:"discovered_at"`
	Kind         string `json:"kind"`
	Preview      string `json:"preview"`
	Error        string `json:"error,omitempty"`
}

// JSONFormatter formats a status report as JSON. Lists are not truncated.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes the report as JSON to w.
func (f *JSONFormatter) Format(w io.Writer, input Input) error {
	g := group(input.Records)

	out := jsonReport{
		Meta: jsonMeta{
			Ledger:  input.LedgerPath,
			Backend: input.Backend,
			Total:   len(input.Records),
		},
		Counts: jsonCounts{
			Success: g.counts[ledger.StatusSuccess],
			Failed:  g.counts[ledger.StatusFailed],
			Skipped: g.counts[ledger.StatusSkipped],
			Pending: g.counts[ledger.StatusPending],
		},
		Failed:  toJSONRecords(g.failed),
		Pending: toJSONRecords(g.pending),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func toJSONRecords(records []ledger.Record) []jsonRecord {
	result := make([]jsonRecord, 0, len(records))
	for _, r := range records {
		result = append(result, jsonRecord{
			ID:           r.ID,
			DiscoveredAt: r.DiscoveredAt.Format("2006-01-02T15:04:05Z07:00"),
			Kind:         string(r.Kind),
			Preview:      r.Preview,
			Error:        r.Error,
		})
	}
	return result
}
