package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/frame"
)

// ReadCSV loads a CSV file with a header row into a table. Each column is
// typed as int, float or bool when every non-empty value parses as one,
// otherwise string. Empty cells are nil.
func ReadCSV(path string) (*frame.Table, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseCSV(f)
}

// ParseCSV reads CSV data with a header row into a table.
func ParseCSV(r io.Reader) (*frame.Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV has no header row")
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	body := records[1:]

	parsers := make([]func(string) (any, error), len(header))
	for c := range header {
		parsers[c] = inferColumn(body, c)
	}

	rows := make([][]any, len(body))
	for r, rec := range body {
		row := make([]any, len(header))
		for c := range header {
			if c >= len(rec) || rec[c] == "" {
				continue
			}
			v, err := parsers[c](rec[c])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r+1, header[c], err)
			}
			row[c] = v
		}
		rows[r] = row
	}
	return frame.New(header, rows)
}

func inferColumn(body [][]string, c int) func(string) (any, error) {
	candidates := []func(string) (any, error){
		func(s string) (any, error) { return strconv.ParseInt(s, 10, 64) },
		func(s string) (any, error) { return strconv.ParseFloat(s, 64) },
		func(s string) (any, error) { return strconv.ParseBool(s) },
	}
	for _, parse := range candidates {
		ok := true
		for _, rec := range body {
			if c >= len(rec) || rec[c] == "" {
				continue
			}
			if _, err := parse(rec[c]); err != nil {
				ok = false
				break
			}
		}
		if ok {
			return parse
		}
	}
	return func(s string) (any, error) { return s, nil }
}
