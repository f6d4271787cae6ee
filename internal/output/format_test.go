package output

import (
	"strings"
	"testing"
)

type exam struct {
	Name     string   `json:"name" yaml:"name"`
	Sections []string `json:"sections" yaml:"sections"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"table", FormatTable, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPrintJSON(t *testing.T) {
	var sb strings.Builder
	p := NewPrinter(&sb, FormatJSON, "")

	if err := p.Print(exam{Name: "Midterm <1>", Sections: []string{"A"}}); err != nil {
		t.Fatalf("Print JSON failed: %v", err)
	}
	out := sb.String()
	if !strings.Contains(out, `"name": "Midterm <1>"`) {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestPrintYAML(t *testing.T) {
	var sb strings.Builder
	p := NewPrinter(&sb, FormatYAML, "")

	if err := p.Print(exam{Name: "Midterm", Sections: []string{"A", "B"}}); err != nil {
		t.Fatalf("Print YAML failed: %v", err)
	}
	out := sb.String()
	if !strings.Contains(out, "name: Midterm") || !strings.Contains(out, "- B") {
		t.Fatalf("unexpected yaml output: %s", out)
	}
}

func TestPrintQuery(t *testing.T) {
	data := exam{Name: "Midterm", Sections: []string{"A", "B"}}

	t.Run("json", func(t *testing.T) {
		var sb strings.Builder
		if err := NewPrinter(&sb, FormatJSON, ".sections[]").Print(data); err != nil {
			t.Fatalf("Print: %v", err)
		}
		if got := sb.String(); got != "\"A\"\n\"B\"\n" {
			t.Errorf("unexpected query output: %q", got)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var sb strings.Builder
		if err := NewPrinter(&sb, FormatYAML, "{n: .name}").Print(data); err != nil {
			t.Fatalf("Print: %v", err)
		}
		if got := sb.String(); got != "n: Midterm\n" {
			t.Errorf("unexpected query output: %q", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		var sb strings.Builder
		if err := NewPrinter(&sb, FormatJSON, ".[").Print(data); err == nil {
			t.Error("expected error for invalid query")
		}
	})

	t.Run("runtime error", func(t *testing.T) {
		var sb strings.Builder
		if err := NewPrinter(&sb, FormatJSON, ".name | keys").Print(data); err == nil {
			t.Error("expected error for keys on a string")
		}
	})
}

func TestPrintTable(t *testing.T) {
	table := Table{
		Headers: []string{"ID", "NAME"},
		Rows:    [][]string{{"1", "midterm.md"}, {"2", "final.md"}},
	}

	var sb strings.Builder
	if err := NewPrinter(&sb, FormatTable, "").Print(table); err != nil {
		t.Fatalf("Print: %v", err)
	}
	out := sb.String()
	if !strings.Contains(out, "ID") || !strings.Contains(out, "final.md") {
		t.Fatalf("unexpected table output: %s", out)
	}

	sb.Reset()
	if err := NewPrinter(&sb, FormatJSON, ".[1].NAME").Print(table); err != nil {
		t.Fatalf("Print as JSON: %v", err)
	}
	if got := sb.String(); got != "\"final.md\"\n" {
		t.Errorf("unexpected json table output: %q", got)
	}

	sb.Reset()
	if err := NewPrinter(&sb, FormatTable, "").Print(map[string]int{"a": 1}); err == nil {
		t.Error("expected error for non-table data in table format")
	}
}
