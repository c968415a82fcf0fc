package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/srviewer/internal/metrics"
)

// MetricEntry is one line of a metric log: the metrics of one pane for one
// sample.
type MetricEntry struct {
	// Position is the navigation position of the sample.
	Position int `json:"position"`

	// File is the base file name of the sample.
	File string `json:"file"`

	// Label and Path identify the candidate target and raster.
	Label string `json:"label"`
	Path  string `json:"path"`

	// PSNR and SSIM are nil when unavailable.
	PSNR *metrics.Value `json:"psnr,omitempty"`
	SSIM *metrics.Value `json:"ssim,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// MetricLogWriter writes metric entries to a JSONL file.
// It uses buffered I/O and is safe for concurrent use.
type MetricLogWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewMetricLogWriter creates the log at path, creating parent directories.
// If append is true, new entries are appended to an existing file.
func NewMetricLogWriter(path string, append bool) (*MetricLogWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open metric log: %w", err)
	}

	return &MetricLogWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write appends an entry. It is buffered until Flush or Close.
func (w *MetricLogWriter) Write(entry MetricEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal metric entry: %w", err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write metric entry: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file.
func (w *MetricLogWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush metric log: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync metric log: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *MetricLogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close metric log: %w", err)
	}
	return nil
}

// Path returns the log file path.
func (w *MetricLogWriter) Path() string {
	return w.path
}

// MetricLogReader reads entries from a JSONL metric log.
type MetricLogReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewMetricLogReader opens the log at path.
func NewMetricLogReader(path string) (*MetricLogReader, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("metric log %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open metric log: %w", err)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &MetricLogReader{file: file, scanner: scanner}, nil
}

// Read returns the next entry, or io.EOF.
func (r *MetricLogReader) Read() (*MetricEntry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan metric log: %w", err)
		}
		return nil, io.EOF
	}
	var entry MetricEntry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metric entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads every remaining entry.
func (r *MetricLogReader) ReadAll() ([]MetricEntry, error) {
	var entries []MetricEntry
	for {
		entry, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close closes the reader.
func (r *MetricLogReader) Close() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close metric log: %w", err)
	}
	return nil
}
