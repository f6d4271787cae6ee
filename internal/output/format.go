// Package output prints command results as JSON, YAML or tables, optionally
// filtered through a jq query.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/itchyny/gojq"
	"gopkg.in/yaml.v3"
)

// Format represents the output format type.
type Format string

const (
	// FormatJSON is pretty-printed JSON format.
	FormatJSON Format = "json"
	// FormatYAML is YAML format.
	FormatYAML Format = "yaml"
	// FormatTable is tabular format for lists.
	FormatTable Format = "table"
)

// ParseFormat converts a string to a Format type.
// Empty string defaults to FormatJSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	case FormatTable:
		return FormatTable, nil
	default:
		return "", errors.New("invalid --format (expected json|yaml|table)")
	}
}

// Table is an explicit header and row set for FormatTable.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Printer handles output formatting across different formats.
type Printer struct {
	w      io.Writer
	format Format
	query  string
}

// NewPrinter creates a new Printer that writes to w in the given format.
// A non-empty query is a jq program applied before printing.
func NewPrinter(w io.Writer, format Format, query string) *Printer {
	return &Printer{
		w:      w,
		format: format,
		query:  query,
	}
}

// Print outputs data in the configured format.
func (p *Printer) Print(data any) error {
	if data == nil {
		return nil
	}

	if table, ok := data.(Table); ok {
		if p.format != FormatTable {
			return p.printStructured(tableRecords(table))
		}
		return p.printTable(table.Headers, table.Rows)
	}

	switch p.format {
	case FormatJSON, FormatYAML:
		return p.printStructured(data)
	case FormatTable:
		return fmt.Errorf("table format requires a table result")
	default:
		return fmt.Errorf("unsupported format: %s", p.format)
	}
}

func (p *Printer) printStructured(data any) error {
	if p.query == "" {
		return p.encode(data)
	}

	results, err := runQuery(p.query, data)
	if err != nil {
		return err
	}
	for _, v := range results {
		if err := p.encode(v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) encode(v any) error {
	if p.format == FormatYAML {
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(p.w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runQuery evaluates a jq program. gojq only walks plain maps and slices,
// so data is round-tripped through JSON first.
func runQuery(query string, data any) ([]any, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid --query: %w", err)
	}

	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("invalid --query: %w", err)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}

	var out []any
	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("query error: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func tableRecords(t Table) []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(row) {
				rec[h] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

func (p *Printer) printTable(headers []string, rows [][]string) error {
	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)

	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, h)
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, cell)
		}
		fmt.Fprintln(w)
	}

	return w.Flush()
}
