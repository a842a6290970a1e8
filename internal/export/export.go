// Package export writes consensus results as CSV, JSON or YAML.
//
// CSV has one row per (subject, task kind) with the consensus value and
// aux_info as JSON cells. JSON and YAML carry the full nested result.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/consensus.report/internal/fsutil"
	"github.com/banshee-data/consensus.report/internal/monitoring"
	"github.com/banshee-data/consensus.report/internal/reduce"
)

// Format names an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts csv, json, yaml or yml, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q: want csv, json or yaml", s)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Header is the CSV column order.
var Header = []string{
	"subject_id", "task_kind", "consensus", "consensus_reached", "n_evaluators", "aux_info",
}

// Write encodes results to w in format f.
func Write(w io.Writer, f Format, results []reduce.Result) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, results)
	case FormatJSON:
		return WriteJSON(w, results)
	case FormatYAML:
		return WriteYAML(w, results)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

// WriteCSV writes a header and one row per result.
func WriteCSV(w io.Writer, results []reduce.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, res := range results {
		value := ""
		if res.Consensus != nil {
			b, err := json.Marshal(res.Consensus)
			if err != nil {
				return fmt.Errorf("subject %d %s: %w", res.SubjectID, res.Kind, err)
			}
			value = string(b)
		}
		aux, err := json.Marshal(res.Aux)
		if err != nil {
			return fmt.Errorf("subject %d %s: %w", res.SubjectID, res.Kind, err)
		}
		if err := cw.Write([]string{
			strconv.FormatInt(res.SubjectID, 10),
			res.Kind.String(),
			value,
			strconv.FormatBool(res.Reached),
			strconv.Itoa(res.NEvaluators),
			string(aux),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes results as an indented JSON array.
func WriteJSON(w io.Writer, results []reduce.Result) error {
	if results == nil {
		results = []reduce.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// WriteYAML writes results as a YAML sequence with the same field names as
// the JSON export.
func WriteYAML(w io.Writer, results []reduce.Result) error {
	// Round-trip through JSON so the YAML keys follow the json tags and
	// embedded aux blocks are flattened the same way.
	b, err := json.Marshal(results)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc []interface{}
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if doc == nil {
		doc = []interface{}{}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plainNumbers(doc)); err != nil {
		return err
	}
	return enc.Close()
}

// plainNumbers replaces json.Number with int64 or float64 so ids are not
// written in exponent form or quoted.
func plainNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case []interface{}:
		for i := range t {
			t[i] = plainNumbers(t[i])
		}
		return t
	case map[string]interface{}:
		for k := range t {
			t[k] = plainNumbers(t[k])
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	default:
		return v
	}
}

// WriteFile writes results to path on fsys, creating parent directories.
func WriteFile(fsys fsutil.FileSystem, path string, f Format, results []reduce.Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	out, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(out, f, results); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}

	monitoring.Logf("export: wrote %d results to %s (%s)", len(results), path, f)
	return nil
}
