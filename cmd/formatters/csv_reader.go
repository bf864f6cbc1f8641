package formatters

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// CSVReader reads report CSV artifacts back into records
type CSVReader struct {
	reader *csv.Reader
	closer io.Closer
}

// NewCSVReader creates a new CSV reader, skipping a leading byte-order mark
func NewCSVReader(r io.Reader) (*CSVReader, error) {
	buffered := bufio.NewReader(r)
	prefix, err := buffered.Peek(len(utf8BOM))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read CSV prefix: %w", err)
	}
	if bytes.Equal(prefix, []byte(utf8BOM)) {
		if _, err := buffered.Discard(len(utf8BOM)); err != nil {
			return nil, fmt.Errorf("failed to skip byte-order mark: %w", err)
		}
	}

	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	return &CSVReader{reader: reader}, nil
}

// NewCSVReaderWithCloser creates a new CSV reader that closes r on Close
func NewCSVReaderWithCloser(r io.ReadCloser) (*CSVReader, error) {
	reader, err := NewCSVReader(r)
	if err != nil {
		return nil, err
	}
	reader.closer = r
	return reader, nil
}

// ReadAll reads all remaining records, title and header rows included
func (r *CSVReader) ReadAll() ([][]string, error) {
	records, err := r.reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV record: %w", err)
	}
	return records, nil
}

// Close closes the underlying reader if it's closable
func (r *CSVReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
