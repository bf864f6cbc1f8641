package compressors

import (
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

var registry = map[string]*codec{
	"zstd": {
		name:         "zstd",
		extension:    ".zst",
		mimeType:     "application/zstd",
		minLevel:     1,
		maxLevel:     22,
		defaultLevel: 3,
		newWriter: func(w io.Writer, level int) (io.WriteCloser, error) {
			return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		},
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			d, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		},
	},
	"lz4": {
		name:         "lz4",
		extension:    ".lz4",
		mimeType:     "application/x-lz4",
		minLevel:     1,
		maxLevel:     9,
		defaultLevel: 1,
		newWriter: func(w io.Writer, level int) (io.WriteCloser, error) {
			lw := lz4.NewWriter(w)
			if err := lw.Apply(lz4.CompressionLevelOption(lz4Levels[level-1])); err != nil {
				return nil, err
			}
			return lw, nil
		},
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(lz4.NewReader(r)), nil
		},
	},
	"gzip": {
		name:         "gzip",
		extension:    ".gz",
		mimeType:     "application/gzip",
		minLevel:     1,
		maxLevel:     9,
		defaultLevel: 6,
		newWriter: func(w io.Writer, level int) (io.WriteCloser, error) {
			return gzip.NewWriterLevel(w, level)
		},
		newReader: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
	},
	"none": {
		name: "none",
	},
}
