package importer

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Row is one undecoded record description. Line is the position of the row
// in its source: the file line for CSV, the 1-based element index otherwise.
type Row struct {
	Line   int    `json:"line"`
	Domain string `json:"domain"`
	Type   string `json:"type"`
	Value  string `json:"value"`
	TTL    string `json:"ttl,omitempty"`
}

// FormatFor picks a format from a file name, falling back to the content type.
func FormatFor(name, contentType string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "text/csv":
		return FormatCSV, nil
	case "application/json":
		return FormatJSON, nil
	case "application/yaml", "application/x-yaml", "text/yaml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported import file %q (%s)", name, contentType)
}

// DecodeRows reads every row from r. Rows are returned as written; field
// validation is left to the import.
func DecodeRows(r io.Reader, format Format) ([]Row, error) {
	switch format {
	case FormatCSV:
		return decodeCSV(r)
	case FormatJSON:
		var raw []rawRow
		if err := json.NewDecoder(r).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode json rows: %w", err)
		}
		return fromRaw(raw), nil
	case FormatYAML:
		var raw []rawRow
		if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml rows: %w", err)
		}
		return fromRaw(raw), nil
	default:
		return nil, fmt.Errorf("unsupported import format %q", format)
	}
}

type rawRow struct {
	Domain string `json:"domain" yaml:"domain"`
	Type   string `json:"type" yaml:"type"`
	Value  string `json:"value" yaml:"value"`
	TTL    any    `json:"ttl" yaml:"ttl"`
}

func fromRaw(raw []rawRow) []Row {
	rows := make([]Row, len(raw))
	for i, r := range raw {
		rows[i] = Row{Line: i + 1, Domain: r.Domain, Type: r.Type, Value: r.Value, TTL: ttlText(r.TTL)}
	}
	return rows
}

// ttlText renders a ttl given as a number or a string.
func ttlText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}

var csvColumns = []string{"domain", "type", "value", "ttl"}

func decodeCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range csvColumns[:3] {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("csv header is missing column %q", col)
		}
	}

	field := func(rec []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	rows := []Row{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, Row{
			Line:   line,
			Domain: field(rec, "domain"),
			Type:   field(rec, "type"),
			Value:  field(rec, "value"),
			TTL:    field(rec, "ttl"),
		})
	}
	return rows, nil
}
