// Package compressors wraps close-cycle archives in an optional compression
// layer. The archive key carries the codec suffix, so a stored object can be
// decoded again from its name alone.
package compressors

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ErrUnsupportedCompression is returned when an unsupported compression type is requested
var ErrUnsupportedCompression = errors.New("unsupported compression type")

// Compressor compresses a rendered artifact before it is archived
type Compressor interface {
	// Compress returns data encoded at level. Out of range levels use DefaultLevel.
	Compress(data []byte, level int) ([]byte, error)

	// NewReader wraps r with a decompressing reader
	NewReader(r io.Reader) (io.ReadCloser, error)

	// Extension is the key suffix, e.g. ".zst"; empty for none
	Extension() string

	// MIMEType is the stored content type, empty to keep the artifact's own
	MIMEType() string

	DefaultLevel() int

	// ValidLevel reports whether level is accepted by this codec
	ValidLevel(level int) bool
}

// codec implements Compressor over a streaming writer/reader pair. A codec
// without a writer passes data through.
type codec struct {
	name         string
	extension    string
	mimeType     string
	minLevel     int
	maxLevel     int
	defaultLevel int
	newWriter    func(w io.Writer, level int) (io.WriteCloser, error)
	newReader    func(r io.Reader) (io.ReadCloser, error)
}

func (c *codec) Compress(data []byte, level int) ([]byte, error) {
	if c.newWriter == nil {
		return data, nil
	}
	if !c.ValidLevel(level) {
		level = c.defaultLevel
	}

	var buffer bytes.Buffer
	w, err := c.newWriter(&buffer, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", c.name, err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to %s-compress archive: %w", c.name, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush %s writer: %w", c.name, err)
	}
	return buffer.Bytes(), nil
}

func (c *codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	if c.newReader == nil {
		return io.NopCloser(r), nil
	}
	rc, err := c.newReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s reader: %w", c.name, err)
	}
	return rc, nil
}

func (c *codec) Extension() string { return c.extension }
func (c *codec) MIMEType() string  { return c.mimeType }
func (c *codec) DefaultLevel() int { return c.defaultLevel }

func (c *codec) ValidLevel(level int) bool {
	return level >= c.minLevel && level <= c.maxLevel
}

// GetCompressor returns the codec registered under name. An empty name
// means no compression.
func GetCompressor(name string) (Compressor, error) {
	if name == "" {
		name = "none"
	}
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, name)
	}
	return c, nil
}

// Names lists the registered codecs in sorted order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForKey picks the codec matching an archive key's suffix. Keys without a
// known suffix are treated as uncompressed.
func ForKey(key string) Compressor {
	for _, c := range registry {
		if c.extension != "" && strings.HasSuffix(key, c.extension) {
			return c
		}
	}
	return registry["none"]
}

// StripExtension removes the codec suffix from key
func StripExtension(key string, c Compressor) string {
	return strings.TrimSuffix(key, c.Extension())
}
