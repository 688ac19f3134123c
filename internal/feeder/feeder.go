// Package feeder loads seed data from CSV or JSON files and hands one
// record to each virtual-user run in round-robin order.
package feeder

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Record is a single row of data with named fields.
type Record map[string]string

// Feeder cycles through a fixed dataset. Safe for concurrent use; the
// dataset wraps around because virtual users run scenarios indefinitely.
type Feeder struct {
	records []Record
	mu      sync.Mutex
	index   int
}

// Open loads a dataset, inferring the format from the file extension when
// kind is empty ("csv" or "json").
func Open(path, kind string) (*Feeder, error) {
	if kind == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			kind = "csv"
		case ".json":
			kind = "json"
		default:
			return nil, fmt.Errorf("cannot infer feeder type from %q, specify csv or json", path)
		}
	}

	switch strings.ToLower(kind) {
	case "csv":
		return openCSV(path)
	case "json":
		return openJSON(path)
	default:
		return nil, fmt.Errorf("unsupported feeder type %q", kind)
	}
}

// openCSV reads a CSV file whose first row names the fields.
func openCSV(path string) (*Feeder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file needs a header row and at least one data row")
	}

	header := rows[0]
	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, expected %d", i+2, len(row), len(header))
		}
		record := make(Record, len(header))
		for j, field := range header {
			record[field] = row[j]
		}
		records = append(records, record)
	}

	return &Feeder{records: records}, nil
}

// openJSON reads a JSON array of flat objects; values are stringified.
func openJSON(path string) (*Feeder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open JSON file: %w", err)
	}
	defer file.Close()

	var raw []map[string]interface{}
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("JSON file contains an empty array")
	}

	records := make([]Record, 0, len(raw))
	for i, obj := range raw {
		if len(obj) == 0 {
			return nil, fmt.Errorf("record %d is empty", i)
		}
		record := make(Record, len(obj))
		for key, value := range obj {
			record[key] = fmt.Sprintf("%v", value)
		}
		records = append(records, record)
	}

	return &Feeder{records: records}, nil
}

// Next returns the next record, wrapping to the start after the last one.
// Implements the executor's seed-source contract.
func (f *Feeder) Next() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	record := f.records[f.index]
	f.index = (f.index + 1) % len(f.records)
	return record
}

// Len returns the number of records in the dataset.
func (f *Feeder) Len() int {
	return len(f.records)
}
