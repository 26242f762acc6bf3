// Package output renders CLI command results as tables, JSON, or YAML.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Format selects how a command renders its result.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat resolves a --output flag value. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format %q (valid: table, json, yaml)", s)
	}
}

func (f Format) String() string { return string(f) }

// Printer writes command results in one configured format.
type Printer struct {
	out    io.Writer
	format Format
}

// NewPrinter creates a printer for the given writer and format.
func NewPrinter(out io.Writer, format Format) *Printer {
	return &Printer{out: out, format: format}
}

// Format returns the configured format.
func (p *Printer) Format() Format { return p.format }

// Print renders data in the configured format. Table output requires the
// data to implement TableRenderer; other data falls back to JSON.
func (p *Printer) Print(data any) error {
	switch p.format {
	case FormatTable:
		if renderer, ok := data.(TableRenderer); ok {
			return PrintTable(p.out, renderer)
		}
		return PrintJSON(p.out, data)
	case FormatJSON:
		return PrintJSON(p.out, data)
	case FormatYAML:
		return PrintYAML(p.out, data)
	default:
		return fmt.Errorf("unknown output format %q", p.format)
	}
}

// Printf writes a formatted message to the printer's writer.
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}
