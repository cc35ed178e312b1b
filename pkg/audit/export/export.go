// Package export writes audit entries to portable formats.
//
// Exporters consume the lazy entry sequence returned by audit.Log.Entries,
// so an export never holds the whole log in memory.
//
//	exp, err := export.New("csv")
//	if err != nil {
//	    return err
//	}
//	n, err := exp.Export(ctx, log.Entries(ctx), os.Stdout)
package export

import (
	"context"
	"fmt"
	"io"
	"iter"

	"mercator-hq/arbiter/pkg/governance"
)

// Supported formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Exporter writes a sequence of entries to w and returns how many were
// written.
type Exporter interface {
	Format() string
	Export(ctx context.Context, entries iter.Seq2[*governance.AuditEntry, error], w io.Writer) (int, error)
}

// New returns the exporter for format with its default settings.
func New(format string) (Exporter, error) {
	switch format {
	case FormatJSON:
		return NewJSONExporter(true), nil
	case FormatCSV:
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want %s or %s)", format, FormatJSON, FormatCSV)
	}
}
