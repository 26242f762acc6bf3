package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{" json ", FormatJSON, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) error = nil, want failure", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrinterFormats(t *testing.T) {
	data := map[string]any{"name": "codedb", "workers": 4}

	var buf bytes.Buffer
	if err := NewPrinter(&buf, FormatJSON).Print(data); err != nil {
		t.Fatalf("Print(json) error = %v", err)
	}
	if !strings.Contains(buf.String(), `"name": "codedb"`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	if err := NewPrinter(&buf, FormatYAML).Print(data); err != nil {
		t.Fatalf("Print(yaml) error = %v", err)
	}
	if !strings.Contains(buf.String(), "name: codedb") {
		t.Errorf("yaml output = %q", buf.String())
	}

	// Non-renderer data in table mode falls back to JSON.
	buf.Reset()
	if err := NewPrinter(&buf, FormatTable).Print(data); err != nil {
		t.Fatalf("Print(table fallback) error = %v", err)
	}
	if !strings.Contains(buf.String(), `"workers": 4`) {
		t.Errorf("fallback output = %q", buf.String())
	}
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("STAT", "VALUE")
	table.AddRow("current_size", "3")
	table.AddRow("processed", "120")

	var buf bytes.Buffer
	if err := NewPrinter(&buf, FormatTable).Print(table); err != nil {
		t.Fatalf("Print(table) error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"STAT", "VALUE", "current_size", "120"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}
