package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
	FormatRaw   OutputFormat = "raw"
)

// Formatter handles output formatting
type Formatter struct {
	format OutputFormat
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(format string) *Formatter {
	return &Formatter{
		format: OutputFormat(strings.ToLower(format)),
		writer: os.Stdout,
	}
}

// SetWriter sets the output writer
func (f *Formatter) SetWriter(w io.Writer) {
	f.writer = w
}

// TagResult is one tag read for output
type TagResult struct {
	Tag   string      `json:"tag"`
	Value interface{} `json:"value,omitempty"`
	Error string      `json:"error,omitempty"`
	Time  time.Time   `json:"time"`
}

// PrintResults prints tag results in the configured format
func (f *Formatter) PrintResults(results []TagResult) error {
	switch f.format {
	case FormatJSON:
		enc := json.NewEncoder(f.writer)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case FormatCSV:
		w := csv.NewWriter(f.writer)
		for _, r := range results {
			w.Write([]string{r.Time.Format(time.RFC3339Nano), r.Tag, formatValue(r.Value), r.Error})
		}
		w.Flush()
		return w.Error()
	case FormatRaw:
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(f.writer, "error: %s\n", r.Error)
				continue
			}
			fmt.Fprintln(f.writer, formatValue(r.Value))
		}
		return nil
	default:
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			value := formatValue(r.Value)
			if r.Error != "" {
				value = "error: " + r.Error
			}
			rows = append(rows, []string{r.Tag, value})
		}
		f.PrintTable([]string{"TAG", "VALUE"}, rows)
		return nil
	}
}

// PrintTable prints data in table format
func (f *Formatter) PrintTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Fprintf(f.writer, "%-*s ", widths[i], h)
	}
	fmt.Fprintln(f.writer)

	for i := range headers {
		fmt.Fprint(f.writer, strings.Repeat("-", widths[i]), " ")
	}
	fmt.Fprintln(f.writer)

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(f.writer, "%-*s ", widths[i], cell)
			}
		}
		fmt.Fprintln(f.writer)
	}
}

// PrintKeyValue prints key-value pairs; JSON output emits one object
func (f *Formatter) PrintKeyValue(pairs map[string]interface{}, order []string) error {
	if f.format == FormatJSON {
		enc := json.NewEncoder(f.writer)
		enc.SetIndent("", "  ")
		return enc.Encode(pairs)
	}
	if len(order) == 0 {
		for k := range pairs {
			order = append(order, k)
		}
		sort.Strings(order)
	}

	maxKeyLen := 0
	for _, key := range order {
		if len(key) > maxKeyLen {
			maxKeyLen = len(key)
		}
	}
	for _, key := range order {
		if val, ok := pairs[key]; ok {
			fmt.Fprintf(f.writer, "%-*s: %v\n", maxKeyLen, key, formatValue(val))
		}
	}
	return nil
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case float32:
		return fmt.Sprintf("%.4f", v)
	case float64:
		return fmt.Sprintf("%.6f", v)
	case string:
		return v
	case []byte:
		return fmt.Sprintf("%x", v)
	case []interface{}:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}
