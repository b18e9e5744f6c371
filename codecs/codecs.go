// Package codecs names the compression codecs applied to backup streams,
// and constructs encoding writers and decoding readers for them.
package codecs

import (
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
)

// Codec is a compression codec applied to a backup stream.
type Codec int

const (
	None Codec = iota
	Gzip
	Snappy
	Zstandard
)

var codecNames = map[Codec]string{
	None:      "NONE",
	Gzip:      "GZIP",
	Snappy:    "SNAPPY",
	Zstandard: "ZSTANDARD",
}

// Parse maps a codec name to its Codec. Names are matched without regard
// to case, and "zstd" is accepted for Zstandard.
func Parse(name string) (Codec, error) {
	switch strings.ToUpper(name) {
	case "", "NONE":
		return None, nil
	case "GZIP":
		return Gzip, nil
	case "SNAPPY":
		return Snappy, nil
	case "ZSTANDARD", "ZSTD":
		return Zstandard, nil
	default:
		return None, fmt.Errorf("%q is not a valid Codec (options are %q)",
			name, []string{"NONE", "GZIP", "SNAPPY", "ZSTANDARD"})
	}
}

func (c Codec) String() string {
	if n, ok := codecNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Codec(%d)", int(c))
}

// Extension returns the file extension commonly given to streams encoded
// with the Codec.
func (c Codec) Extension() string {
	switch c {
	case None:
		return ".raw"
	case Gzip:
		return ".gz"
	case Snappy:
		return ".sz"
	case Zstandard:
		return ".zst"
	default:
		panic("invalid Codec")
	}
}

// MarshalYAML maps the Codec to its YAML value.
func (c Codec) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// UnmarshalYAML maps a YAML value into the Codec.
func (c *Codec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string

	if err := unmarshal(&str); err != nil {
		return err
	}
	var parsed, err = Parse(str)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Decompressor is a ReadCloser where Close closes and releases Decompressor
// state, but does not Close or affect the underlying Reader.
type Decompressor io.ReadCloser

// Compressor is a WriteCloser where Close closes and releases Compressor
// state, potentially flushing final content to the underlying Writer,
// but does not Close or otherwise affect the underlying Writer.
type Compressor io.WriteCloser

// NewCodecReader returns a Decompressor of the Reader encoded with Codec.
func NewCodecReader(r io.Reader, codec Codec) (Decompressor, error) {
	switch codec {
	case None:
		return ioutil.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Snappy:
		return ioutil.NopCloser(snappy.NewReader(r)), nil
	case Zstandard:
		return zstdNewReader(r)
	default:
		return nil, fmt.Errorf("unsupported codec %s", codec.String())
	}
}

// NewCodecWriter returns a Compressor wrapping the Writer encoding with Codec.
func NewCodecWriter(w io.Writer, codec Codec) (Compressor, error) {
	switch codec {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case Zstandard:
		return zstdNewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported codec %s", codec.String())
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

var (
	zstdNewReader = func(io.Reader) (io.ReadCloser, error) {
		return nil, fmt.Errorf("ZSTANDARD support requires building with the libzstd tag")
	}
	zstdNewWriter = func(io.Writer) (io.WriteCloser, error) {
		return nil, fmt.Errorf("ZSTANDARD support requires building with the libzstd tag")
	}
)
