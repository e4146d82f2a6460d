// Package encoding serializes arrow records into the file formats the catalog
// can read: snappy compressed parquet and line-delimited JSON.
package encoding

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

type Format string

const (
	Parquet Format = "parquet"
	NDJSON  Format = "ndjson"
)

var ErrUnknownFormat = errors.New("unknown format")

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case Parquet:
		return Parquet, nil
	case NDJSON, "json":
		return NDJSON, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnknownFormat)
	}
}

// Extension is the file extension used for objects of this format.
func (f Format) Extension() string {
	switch f {
	case NDJSON:
		return "json"
	default:
		return string(f)
	}
}

// Encoder writes a whole record as a single file.
type Encoder interface {
	Encode(w io.Writer, rec arrow.Record) error
}

type options struct {
	compression compress.Compression
}

type Option func(*options)

// WithCompression selects the parquet codec. It has no effect on ndjson.
func WithCompression(c compress.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

var compressions = map[string]compress.Compression{
	"snappy": compress.Codecs.Snappy,
	"gzip":   compress.Codecs.Gzip,
	"zstd":   compress.Codecs.Zstd,
	"none":   compress.Codecs.Uncompressed,
}

// ParseCompression maps a codec name (snappy, gzip, zstd, none) to its parquet codec.
func ParseCompression(s string) (compress.Compression, error) {
	c, ok := compressions[strings.ToLower(s)]
	if !ok {
		return compress.Codecs.Uncompressed, fmt.Errorf("unknown parquet compression %q", s)
	}
	return c, nil
}

func NewEncoder(f Format, opts ...Option) (Encoder, error) {
	o := options{compression: compress.Codecs.Snappy}
	for _, opt := range opts {
		opt(&o)
	}

	switch f {
	case Parquet:
		return &parquetEncoder{compression: o.compression}, nil
	case NDJSON:
		return ndjsonEncoder{}, nil
	default:
		return nil, fmt.Errorf("%q: %w", f, ErrUnknownFormat)
	}
}

type parquetEncoder struct {
	compression compress.Compression
}

func (p *parquetEncoder) Encode(w io.Writer, rec arrow.Record) error {
	props := parquet.NewWriterProperties(parquet.WithCompression(p.compression))

	fw, err := pqarrow.NewFileWriter(rec.Schema(), w, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

type ndjsonEncoder struct{}

func (ndjsonEncoder) Encode(w io.Writer, rec arrow.Record) error {
	if err := array.RecordToJSON(rec, w); err != nil {
		return fmt.Errorf("write ndjson: %w", err)
	}
	return nil
}
