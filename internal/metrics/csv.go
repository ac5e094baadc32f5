package metrics

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// CSVFileName is the metrics file inside the logs directory.
const CSVFileName = "metrics.csv"

var csvHeader = []string{"language", "cwe", "model_used", "input_tokens", "output_tokens", "latency_ms"}

// CSVSink appends records to a CSV file.
type CSVSink struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

// NewCSVSink opens (or creates) dir/metrics.csv. The header row is written
// only when the file did not exist before.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating metrics dir: %w", err)
	}
	path := filepath.Join(dir, CSVFileName)

	_, statErr := os.Stat(path)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("checking metrics file: %w", statErr)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening metrics file: %w", err)
	}

	w := csv.NewWriter(f)
	w.UseCRLF = true

	s := &CSVSink{path: path, file: f, w: w}
	if !exists {
		if err := s.writeRow(csvHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("writing metrics header: %w", err)
		}
	}
	return s, nil
}

// Path returns the CSV file path.
func (s *CSVSink) Path() string {
	return s.path
}

// Write appends one row and flushes it.
func (s *CSVSink) Write(_ context.Context, r Record) error {
	row := []string{
		r.Language,
		r.CWE,
		r.ModelUsed,
		strconv.Itoa(r.InputTokens),
		strconv.Itoa(r.OutputTokens),
		strconv.FormatInt(r.LatencyMS, 10),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fs.ErrClosed
	}
	if err := s.writeRow(row); err != nil {
		return fmt.Errorf("writing metrics row: %w", err)
	}
	return nil
}

func (s *CSVSink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close closes the file. Further writes fail.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
