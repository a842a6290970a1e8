// Package ingest reads typed classification dumps.
//
// Two layouts are accepted: a single JSON array of classifications, or JSON
// Lines with one classification object per line.
package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode"

	"github.com/banshee-data/consensus.report/internal/annotation"
	"github.com/banshee-data/consensus.report/internal/fsutil"
	"github.com/banshee-data/consensus.report/internal/monitoring"
)

// MaxInputSize bounds files read by LoadFile.
const MaxInputSize = 512 * 1024 * 1024 // 512MB

// ReadClassifications decodes every classification from r. Errors are
// wrapped with the record position; match *annotation.SchemaError with
// errors.As.
func ReadClassifications(r io.Reader) ([]annotation.Classification, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		return readArray(dec)
	}
	return readStream(dec)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !unicode.IsSpace(rune(b)) {
			return b, br.UnreadByte()
		}
	}
}

func readArray(dec *json.Decoder) ([]annotation.Classification, error) {
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading array start: %w", err)
	}
	var out []annotation.Classification
	for dec.More() {
		var c annotation.Classification
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("classification %d: %w", len(out), err)
		}
		out = append(out, c)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading array end: %w", err)
	}
	return out, nil
}

func readStream(dec *json.Decoder) ([]annotation.Classification, error) {
	var out []annotation.Classification
	for {
		var c annotation.Classification
		err := dec.Decode(&c)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line record %d: %w", len(out)+1, err)
		}
		out = append(out, c)
	}
}

// LoadFile reads classifications from path on fsys.
func LoadFile(fsys fsutil.FileSystem, path string) ([]annotation.Classification, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("input %s is a directory", path)
	}
	if info.Size() > MaxInputSize {
		return nil, fmt.Errorf("input too large: %d bytes (max %d)", info.Size(), MaxInputSize)
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	rows, err := ReadClassifications(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	monitoring.Logf("ingest: read %d classifications from %s", len(rows), path)
	return rows, nil
}
