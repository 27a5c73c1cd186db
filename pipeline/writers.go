package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/aluiziolira/go-scrape-wools/models"
)

// ErrReportWritten is returned when a sink receives a second document.
var ErrReportWritten = errors.New("report already written")

// ReportWriter persists the final report document.
type ReportWriter interface {
	Write(doc *models.ReportDocument) error
	Close() error
	Validate() error
}

// fileSink owns the output file and enforces a single document per file.
type fileSink struct {
	kind    string
	file    *os.File
	buf     *bufio.Writer
	mu      sync.Mutex
	written bool
}

func openSink(kind, filename string) (*fileSink, error) {
	if dir := filepath.Dir(filename); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", kind, err)
	}
	return &fileSink{kind: kind, file: f, buf: bufio.NewWriter(f)}, nil
}

// once runs emit under the lock unless a document was already accepted.
func (s *fileSink) once(emit func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.written {
		return ErrReportWritten
	}
	s.written = true
	if err := emit(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", s.kind, err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush %s: %w", s.kind, err)
	}
	return s.file.Close()
}

// Validate reports an error when nothing reached the file.
func (s *fileSink) Validate() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s file: %w", s.kind, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s file is empty", s.kind)
	}
	return nil
}

var csvHeader = []string{"brand", "model", "platform", "price", "availability", "needle_size", "composition"}

// CSVWriter writes one row per offer under a fixed header.
type CSVWriter struct {
	*fileSink
	csv *csv.Writer
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	sink, err := openSink("csv", filename)
	if err != nil {
		return nil, err
	}
	w := &CSVWriter{fileSink: sink, csv: csv.NewWriter(sink.buf)}
	if err := w.writeRows([][]string{csvHeader}); err != nil {
		sink.file.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := sink.buf.Flush(); err != nil {
		sink.file.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return w, nil
}

// Write emits the rows of doc. A product without offers still gets a row,
// with the platform columns left empty.
func (w *CSVWriter) Write(doc *models.ReportDocument) error {
	return w.once(func() error {
		return w.writeRows(csvRows(doc))
	})
}

func (w *CSVWriter) writeRows(rows [][]string) error {
	if err := w.csv.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

func csvRows(doc *models.ReportDocument) [][]string {
	var rows [][]string
	for _, wool := range doc.Wools {
		if len(wool.OfferedInPlatforms) == 0 {
			rows = append(rows, []string{wool.Brand, wool.Model, "", "", "", "", ""})
			continue
		}
		for _, offer := range wool.OfferedInPlatforms {
			rows = append(rows, []string{
				wool.Brand,
				wool.Model,
				offer.Platform,
				strconv.FormatFloat(offer.Info.Price, 'f', -1, 64),
				strconv.FormatBool(offer.Info.Availability),
				strconv.Itoa(offer.Info.NeedleSize),
				offer.Info.Composition,
			})
		}
	}
	return rows
}

// JSONWriter writes the document as one indented JSON value.
type JSONWriter struct {
	*fileSink
	enc *json.Encoder
}

// NewJSONWriter creates filename and its parent directory.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	sink, err := openSink("json", filename)
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(sink.buf)
	enc.SetIndent("", "  ")
	return &JSONWriter{fileSink: sink, enc: enc}, nil
}

// Write encodes doc followed by a newline.
func (w *JSONWriter) Write(doc *models.ReportDocument) error {
	return w.once(func() error {
		if err := w.enc.Encode(doc); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
		return nil
	})
}
