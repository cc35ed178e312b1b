package export

import (
	"context"
	"encoding/csv"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/governance"
)

// CSVExporter writes one row per entry. Nested lists are flattened into
// semicolon-separated cells.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Format implements Exporter.
func (e *CSVExporter) Format() string { return FormatCSV }

// Header returns the column names.
func (e *CSVExporter) Header() []string {
	return []string{
		"sequence",
		"recorded_at",
		"request_id",
		"description",
		"tags",
		"final_status",
		"dominant_policy",
		"rationale",
		"conditions",
		"verdicts",
		"skipped",
		"prev_hash",
		"hash",
	}
}

// Export streams entries to w.
func (e *CSVExporter) Export(ctx context.Context, entries iter.Seq2[*governance.AuditEntry, error], w io.Writer) (int, error) {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(e.Header()); err != nil {
			return 0, audit.NewExportError(FormatCSV, 0, err)
		}
	}

	count := 0
	for entry, err := range entries {
		if err != nil {
			return count, audit.NewExportError(FormatCSV, count, err)
		}
		if err := ctx.Err(); err != nil {
			return count, audit.NewExportError(FormatCSV, count, err)
		}
		if err := writer.Write(e.row(entry)); err != nil {
			return count, audit.NewExportError(FormatCSV, count, err)
		}
		count++
		// Flush periodically so long exports make visible progress.
		if count%100 == 0 {
			writer.Flush()
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return count, audit.NewExportError(FormatCSV, count, err)
	}
	return count, nil
}

func (e *CSVExporter) row(entry *governance.AuditEntry) []string {
	d := &entry.Decision

	verdicts := make([]string, len(d.Verdicts))
	for i, v := range d.Verdicts {
		verdicts[i] = v.PolicyName + ":" + string(v.Status)
	}
	skipped := make([]string, len(entry.Skipped))
	for i, s := range entry.Skipped {
		skipped[i] = s.Name
	}

	return []string{
		strconv.FormatUint(entry.Sequence, 10),
		entry.RecordedAt.UTC().Format(time.RFC3339Nano),
		d.RequestID,
		entry.Request.Description(),
		strings.Join(entry.Request.Tags(), ";"),
		string(d.FinalStatus),
		d.DominantPolicy,
		d.Rationale,
		strings.Join(d.Conditions, ";"),
		strings.Join(verdicts, ";"),
		strings.Join(skipped, ";"),
		entry.PrevHash,
		entry.Hash,
	}
}
