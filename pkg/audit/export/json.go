package export

import (
	"context"
	"encoding/json"
	"io"
	"iter"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/governance"
)

// JSONExporter writes entries as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Format implements Exporter.
func (e *JSONExporter) Format() string { return FormatJSON }

// Export streams entries to w as a JSON array, one entry at a time.
func (e *JSONExporter) Export(ctx context.Context, entries iter.Seq2[*governance.AuditEntry, error], w io.Writer) (int, error) {
	if _, err := io.WriteString(w, "["); err != nil {
		return 0, audit.NewExportError(FormatJSON, 0, err)
	}

	count := 0
	for entry, err := range entries {
		if err != nil {
			return count, audit.NewExportError(FormatJSON, count, err)
		}
		if err := ctx.Err(); err != nil {
			return count, audit.NewExportError(FormatJSON, count, err)
		}

		sep := ","
		if count == 0 {
			sep = ""
		}
		if e.Pretty {
			sep += "\n  "
		}
		if _, err := io.WriteString(w, sep); err != nil {
			return count, audit.NewExportError(FormatJSON, count, err)
		}

		data, err := e.serialize(entry)
		if err != nil {
			return count, audit.NewExportError(FormatJSON, count, err)
		}
		if _, err := w.Write(data); err != nil {
			return count, audit.NewExportError(FormatJSON, count, err)
		}
		count++
	}

	closing := "]"
	if e.Pretty && count > 0 {
		closing = "\n]"
	}
	if _, err := io.WriteString(w, closing+"\n"); err != nil {
		return count, audit.NewExportError(FormatJSON, count, err)
	}
	return count, nil
}

func (e *JSONExporter) serialize(entry *governance.AuditEntry) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(entry, "  ", "  ")
	}
	return json.Marshal(entry)
}
