package pipeline

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-wools/models"
)

// namedWriter tags a sink so errors say which file failed.
type namedWriter struct {
	name string
	ReportWriter
}

// DualWriter fans one report out to a CSV and a JSON sink.
type DualWriter struct {
	sinks []namedWriter
}

// NewDualWriter opens csvFilename and jsonFilename. If the second cannot be
// created the first is closed again.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create csv writer: %w", err)
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create json writer: %w", err)
	}
	return &DualWriter{sinks: []namedWriter{
		{name: "csv", ReportWriter: csvWriter},
		{name: "json", ReportWriter: jsonWriter},
	}}, nil
}

// Write hands doc to every sink and stops at the first failure.
func (dw *DualWriter) Write(doc *models.ReportDocument) error {
	for _, s := range dw.sinks {
		if err := s.Write(doc); err != nil {
			return fmt.Errorf("%s write: %w", s.name, err)
		}
	}
	return nil
}

// Close closes every sink, joining the failures.
func (dw *DualWriter) Close() error {
	return dw.each("close", ReportWriter.Close)
}

// Validate checks every sink, joining the failures.
func (dw *DualWriter) Validate() error {
	return dw.each("validate", ReportWriter.Validate)
}

func (dw *DualWriter) each(op string, fn func(ReportWriter) error) error {
	var errs []error
	for _, s := range dw.sinks {
		if err := fn(s.ReportWriter); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", s.name, op, err))
		}
	}
	return errors.Join(errs...)
}
